package polytrack

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for client traffic.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Deduped  prometheus.Counter
}

// NewMetrics creates and registers the client metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests use a
// fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polystats",
			Subsystem: "polytrack_client",
			Name:      "requests_total",
			Help:      "Upstream requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "polystats",
			Subsystem: "polytrack_client",
			Name:      "request_duration_seconds",
			Help:      "Upstream request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Deduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polystats",
			Subsystem: "polytrack_client",
			Name:      "deduplicated_requests_total",
			Help:      "Identical in-flight requests coalesced by singleflight.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration, m.Deduped)
	}
	return m
}
