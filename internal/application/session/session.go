// Package session drives catalog-wide resolution: one session per searched
// user, with a per-track slot that moves through pending, retrying and the
// settled states. Sessions are superseded by newer searches; a generation
// token keeps late responses from a superseded sweep out of fresh state.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Mythses/polystat/internal/application/identity"
	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/domain/shared"
	"github.com/Mythses/polystat/internal/domain/track"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session tracks one user's resolution across the whole catalog. All state
// transitions go through Apply, which enforces the slot state machine and
// rejects writes from a superseded generation.
type Session struct {
	// ID uniquely identifies the session.
	ID shared.SessionID

	// Identity is the resolved subject.
	Identity identity.Identity

	// OnlyVerified restricts every query in the sweep to verified runs.
	OnlyVerified bool

	// Generation is the search generation this session belongs to.
	Generation shared.Generation

	// StartedAt is when the sweep began.
	StartedAt shared.Timestamp

	mu          sync.RWMutex
	results     map[string]leaderboard.PerTrackResult
	order       []string
	completedAt shared.Timestamp
	superseded  bool
}

// NewSession creates a session with every catalog track pending.
func NewSession(ident identity.Identity, catalog *track.Catalog, gen shared.Generation, onlyVerified bool) *Session {
	tracks := catalog.All()
	results := make(map[string]leaderboard.PerTrackResult, len(tracks))
	order := make([]string, 0, len(tracks))
	for _, d := range tracks {
		results[d.ID] = leaderboard.Pending()
		order = append(order, d.ID)
	}

	return &Session{
		ID:           shared.SessionID(uuid.NewString()),
		Identity:     ident,
		OnlyVerified: onlyVerified,
		Generation:   gen,
		StartedAt:    shared.Now(),
		results:      results,
		order:        order,
	}
}

// Apply records a per-track result if the transition is legal and the
// generation is still current. Returns false when the write was discarded.
func (s *Session) Apply(gen shared.Generation, trackID string, result leaderboard.PerTrackResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.superseded || gen != s.Generation {
		return false
	}
	current, ok := s.results[trackID]
	if !ok {
		return false
	}
	if !current.Status.CanTransitionTo(result.Status) {
		return false
	}

	s.results[trackID] = result
	if s.completedAt.IsZero() && s.allSettledLocked() {
		s.completedAt = shared.Now()
	}
	return true
}

// Result returns the current slot for a track.
func (s *Session) Result(trackID string) (leaderboard.PerTrackResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[trackID]
	return r, ok
}

// Supersede marks the session dead; all subsequent Apply calls are refused.
func (s *Session) Supersede() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.superseded = true
}

// IsSuperseded reports whether a newer search replaced this session.
func (s *Session) IsSuperseded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.superseded
}

// IsComplete reports whether every slot has settled.
func (s *Session) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allSettledLocked()
}

func (s *Session) allSettledLocked() bool {
	for _, r := range s.results {
		if !r.IsSettled() {
			return false
		}
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// TrackSlot is one track's slot in a snapshot, in catalog order.
type TrackSlot struct {
	TrackID string                     `json:"trackId"`
	Result  leaderboard.PerTrackResult `json:"result"`
}

// Counts summarizes settled slots.
type Counts struct {
	Found    int `json:"found"`
	NotFound int `json:"notFound"`
	Failed   int `json:"failed"`
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
}

// Snapshot is an immutable copy of session state, safe to serve and
// aggregate while the sweep keeps running.
type Snapshot struct {
	ID           shared.SessionID  `json:"sessionId"`
	Identity     identity.Identity `json:"identity"`
	OnlyVerified bool              `json:"onlyVerified"`
	Generation   shared.Generation `json:"generation"`
	StartedAt    shared.Timestamp  `json:"-"`
	Complete     bool              `json:"complete"`
	Superseded   bool              `json:"superseded"`
	Counts       Counts            `json:"counts"`
	Slots        []TrackSlot       `json:"slots"`
}

// Snapshot copies the current state. Slots preserve catalog order.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:           s.ID,
		Identity:     s.Identity,
		OnlyVerified: s.OnlyVerified,
		Generation:   s.Generation,
		StartedAt:    s.StartedAt,
		Complete:     s.allSettledLocked(),
		Superseded:   s.superseded,
		Slots:        make([]TrackSlot, 0, len(s.order)),
	}

	for _, id := range s.order {
		r := s.results[id]
		snap.Slots = append(snap.Slots, TrackSlot{TrackID: id, Result: r})
		switch r.Status {
		case leaderboard.StatusFound:
			snap.Counts.Found++
		case leaderboard.StatusNotFound:
			snap.Counts.NotFound++
		case leaderboard.StatusFailed:
			snap.Counts.Failed++
		case leaderboard.StatusRetrying:
			snap.Counts.Retrying++
		default:
			snap.Counts.Pending++
		}
	}
	return snap
}

// FailedTracks lists tracks currently eligible for the automatic retry
// sweep, plus the count of failed tracks the sweep must skip. Slots already
// retrying are never picked up again.
func (s *Session) FailedTracks(maxAutoRetries int) (eligible []string, skipped int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		r := s.results[id]
		if r.Status != leaderboard.StatusFailed {
			continue
		}
		if r.CanAutoRetry(maxAutoRetries) {
			eligible = append(eligible, id)
		} else {
			skipped++
		}
	}
	return eligible, skipped
}
