package leaderboard

// ══════════════════════════════════════════════════════════════════════════════
// PER-TRACK RESOLUTION RESULT
// ══════════════════════════════════════════════════════════════════════════════

// TrackStatus is the resolution state of one user on one track.
//
// The lifecycle is Pending → (Found | NotFound | Failed); a Failed track may
// re-enter through Retrying → (Found | NotFound | Failed). Found and NotFound
// are terminal. Failed becomes terminal for the automatic sweep once the
// attempt budget is exhausted; a manual retry re-enters Retrying regardless.
type TrackStatus int

const (
	// StatusPending - resolution has been scheduled but not completed.
	StatusPending TrackStatus = iota
	// StatusRetrying - a retry is in flight after an earlier failure.
	StatusRetrying
	// StatusFound - the user has a standing on the track.
	StatusFound
	// StatusNotFound - the service answered and the user has no entry.
	// This is not a failure and is never retried.
	StatusNotFound
	// StatusFailed - resolution failed after its bounded retries.
	StatusFailed
)

// String returns the lowercase state name.
func (s TrackStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRetrying:
		return "retrying"
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next.
func (s TrackStatus) CanTransitionTo(next TrackStatus) bool {
	switch s {
	case StatusPending, StatusRetrying:
		return next == StatusFound || next == StatusNotFound || next == StatusFailed
	case StatusFailed:
		return next == StatusRetrying
	default: // Found and NotFound are terminal
		return false
	}
}

// PerTrackResult is the outcome of resolving one user on one track: a tagged
// union over Found(entry), NotFound and Failed(message, attempts), plus the
// transient Pending and Retrying states. Values are immutable; a track's slot
// is only ever replaced wholesale, never partially updated.
type PerTrackResult struct {
	// Status is the variant tag.
	Status TrackStatus `json:"status"`

	// Entry is the resolved standing. Set only when Status is StatusFound.
	Entry *Entry `json:"entry,omitempty"`

	// Message is the last error message. Set only for StatusFailed.
	Message string `json:"message,omitempty"`

	// Attempts is the cumulative attempt count for this track: the HTTP
	// attempts consumed by the failed resolution, plus one per retry cycle
	// since. Compared against the auto-retry cap.
	Attempts int `json:"attempts,omitempty"`
}

// Pending returns the initial result slot for a scheduled track.
func Pending() PerTrackResult {
	return PerTrackResult{Status: StatusPending}
}

// Retrying marks a track as having a retry in flight, preserving the
// accumulated attempt count.
func Retrying(attempts int) PerTrackResult {
	return PerTrackResult{Status: StatusRetrying, Attempts: attempts}
}

// Found wraps a resolved standing.
func Found(entry Entry) PerTrackResult {
	return PerTrackResult{Status: StatusFound, Entry: &entry}
}

// NotFound marks a track the user has no entry on.
func NotFound() PerTrackResult {
	return PerTrackResult{Status: StatusNotFound}
}

// Failed records an exhausted resolution.
func Failed(message string, attempts int) PerTrackResult {
	return PerTrackResult{Status: StatusFailed, Message: message, Attempts: attempts}
}

// IsSettled reports whether the result is past the in-flight states.
func (r PerTrackResult) IsSettled() bool {
	return r.Status == StatusFound || r.Status == StatusNotFound || r.Status == StatusFailed
}

// CanAutoRetry reports whether the interval sweep may re-attempt this track.
// Only failed tracks below the attempt cap qualify; tracks already retrying
// are left alone.
func (r PerTrackResult) CanAutoRetry(maxAutoRetries int) bool {
	return r.Status == StatusFailed && r.Attempts < maxAutoRetries
}
