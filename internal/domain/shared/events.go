package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Sessions emit these as their per-track slots settle;
// subscribers (logging, metrics) observe progress without polling snapshots.
const (
	// Session events
	EventSessionStarted    EventType = "session.started"
	EventSessionCompleted  EventType = "session.completed"
	EventSessionSuperseded EventType = "session.superseded"

	// Resolution events
	EventTrackResolved  EventType = "resolution.track_resolved"
	EventTrackFailed    EventType = "resolution.track_failed"
	EventTrackRetrying  EventType = "resolution.track_retrying"
	EventAutoRetrySweep EventType = "resolution.auto_retry_sweep"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the session that produced this event.
	AggregateID() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted when a resolution session begins sweeping
// the catalog.
type SessionStartedEvent struct {
	BaseEvent
	TokenHash  string `json:"token_hash"`
	TrackCount int    `json:"track_count"`
}

// SessionCompletedEvent is emitted once every track slot has settled.
type SessionCompletedEvent struct {
	BaseEvent
	Found    int `json:"found"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

// SessionSupersededEvent is emitted when a newer search replaces a session
// that still had work in flight.
type SessionSupersededEvent struct {
	BaseEvent
	SupersededBy string `json:"superseded_by"`
}

// TrackResolvedEvent is emitted when a track slot settles as found or not
// found.
type TrackResolvedEvent struct {
	BaseEvent
	TrackID string `json:"track_id"`
	Status  string `json:"status"`
}

// TrackFailedEvent is emitted when a track exhausts its bounded retries.
type TrackFailedEvent struct {
	BaseEvent
	TrackID  string `json:"track_id"`
	Attempts int    `json:"attempts"`
	Message  string `json:"message"`
}

// TrackRetryingEvent is emitted when a failed track re-enters resolution,
// whether by the automatic sweep or a manual request.
type TrackRetryingEvent struct {
	BaseEvent
	TrackID  string `json:"track_id"`
	Attempts int    `json:"attempts"`
	Manual   bool   `json:"manual"`
}

// AutoRetrySweepEvent is emitted by the interval sweep with the number of
// tracks it picked up.
type AutoRetrySweepEvent struct {
	BaseEvent
	Eligible int `json:"eligible"`
	Skipped  int `json:"skipped"`
}

// Subscriber receives domain events. Implementations must not block; slow
// consumers should buffer internally.
type Subscriber interface {
	Notify(event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event Event)

// Notify implements Subscriber.
func (f SubscriberFunc) Notify(event Event) {
	f(event)
}
