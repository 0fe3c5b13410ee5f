// Package debounce provides a trailing-edge debouncer: rapid calls collapse
// into one invocation of the wrapped function after a quiet period. Used to
// keep keystroke-speed search input from launching a catalog sweep per
// character.
// No external dependencies - uses only standard library.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays invocations of a function until calls stop arriving for
// the configured interval. Each call supersedes the pending one; only the
// most recent function runs. Safe for concurrent use.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	gen      uint64
	timer    *time.Timer
}

// New creates a Debouncer with the given quiet interval.
func New(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Interval returns the configured quiet interval.
func (d *Debouncer) Interval() time.Duration {
	return d.interval
}

// Call schedules fn to run after the quiet interval, cancelling any pending
// invocation. fn runs on a timer goroutine.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stale := gen != d.gen
		d.mu.Unlock()
		if !stale {
			fn()
		}
	})
}

// Flush runs fn immediately and cancels any pending invocation. Used for
// explicit submissions that must not wait out the quiet period.
func (d *Debouncer) Flush(fn func()) {
	d.mu.Lock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	fn()
}

// Cancel drops any pending invocation without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
