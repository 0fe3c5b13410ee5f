package scheduler

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// JitterSchedule runs a job at a base interval plus a random delay drawn
// from [MinJitter, MaxJitter) on each tick. The jitter keeps retry sweeps
// from hitting the upstream service in lockstep.
type JitterSchedule struct {
	Interval  time.Duration
	MinJitter time.Duration
	MaxJitter time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitterSchedule creates a JitterSchedule. MaxJitter below MinJitter is
// treated as equal to it.
func NewJitterSchedule(interval, minJitter, maxJitter time.Duration) *JitterSchedule {
	if maxJitter < minJitter {
		maxJitter = minJitter
	}
	return &JitterSchedule{
		Interval:  interval,
		MinJitter: minJitter,
		MaxJitter: maxJitter,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next scheduled time.
func (s *JitterSchedule) Next(t time.Time) time.Time {
	jitter := s.MinJitter
	if span := s.MaxJitter - s.MinJitter; span > 0 {
		s.mu.Lock()
		jitter += time.Duration(s.rng.Int63n(int64(span)))
		s.mu.Unlock()
	}
	return t.Add(s.Interval + jitter)
}

// String returns the string representation of the schedule.
func (s *JitterSchedule) String() string {
	return fmt.Sprintf("@every %s +[%s,%s)", s.Interval, s.MinJitter, s.MaxJitter)
}
