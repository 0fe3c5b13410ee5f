package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Mythses/polystat/internal/application/identity"
	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/domain/shared"
	"github.com/Mythses/polystat/internal/domain/track"
	"github.com/Mythses/polystat/pkg/debounce"
	"github.com/Mythses/polystat/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config controls sweep pacing and the retry policy.
type Config struct {
	// Stagger is the launch spacing between per-track resolutions, so a
	// catalog sweep does not fire thirty requests in the same instant.
	Stagger time.Duration

	// MaxAutoRetries caps the cumulative attempt count the automatic sweep
	// will still act on. Manual retries ignore it.
	MaxAutoRetries int

	// DebounceInterval is the quiet period before a non-immediate search
	// actually starts sweeping.
	DebounceInterval time.Duration

	// MaxSessions bounds the in-memory session map. Oldest superseded
	// sessions are evicted first.
	MaxSessions int
}

// DefaultConfig returns the standard pacing.
func DefaultConfig() Config {
	return Config{
		Stagger:          20 * time.Millisecond,
		MaxAutoRetries:   5,
		DebounceInterval: 500 * time.Millisecond,
		MaxSessions:      64,
	}
}

// sessionStore persists snapshots; the Redis layer implements it. Nil means
// sessions live only in memory.
type sessionStore interface {
	Save(ctx context.Context, sessionID string, snapshot interface{}) error
	Load(ctx context.Context, sessionID string, dest interface{}) error
	Delete(ctx context.Context, sessionID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// Manager owns resolution sessions. A new search supersedes the current
// session: its generation is retired, in-flight work is cancelled, and late
// results are discarded by the generation check in Session.Apply.
type Manager struct {
	resolver *TrackResolver
	catalog  *track.Catalog
	cfg      Config
	logger   *slog.Logger
	store    sessionStore

	mu        sync.RWMutex
	sessions  map[shared.SessionID]*Session
	live      map[shared.SessionID]liveContext
	currentID shared.SessionID
	gen       shared.Generation
	subs      []shared.Subscriber
	closed    bool

	debouncer *debounce.Debouncer
	wg        sync.WaitGroup
}

// liveContext carries the cancellation scope of one session's sweep.
type liveContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a Manager. store may be nil.
func NewManager(resolver *TrackResolver, catalog *track.Catalog, cfg Config, store sessionStore, logger *slog.Logger) *Manager {
	if cfg.Stagger <= 0 {
		cfg.Stagger = DefaultConfig().Stagger
	}
	if cfg.MaxAutoRetries <= 0 {
		cfg.MaxAutoRetries = DefaultConfig().MaxAutoRetries
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		resolver:  resolver,
		catalog:   catalog,
		cfg:       cfg,
		logger:    logger,
		store:     store,
		sessions:  make(map[shared.SessionID]*Session),
		live:      make(map[shared.SessionID]liveContext),
		debouncer: debounce.New(cfg.DebounceInterval),
	}
}

// Subscribe registers an event subscriber. Subscribers must not block.
func (m *Manager) Subscribe(sub shared.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
}

// Start begins a catalog sweep for the subject. The session is created and
// visible immediately with every slot pending; the sweep itself launches
// after the debounce quiet period unless immediate is set. Either way the
// previous session is superseded at once.
func (m *Manager) Start(ident identity.Identity, onlyVerified, immediate bool) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, shared.NewDomainError("session", "Start", shared.ErrInvalidState, "manager is closed")
	}

	m.gen++
	sess := NewSession(ident, m.catalog, m.gen, onlyVerified)

	m.supersedeCurrentLocked(sess.ID)
	m.evictLocked()
	m.sessions[sess.ID] = sess
	m.currentID = sess.ID

	ctx, cancel := context.WithCancel(context.Background())
	m.live[sess.ID] = liveContext{ctx: ctx, cancel: cancel}
	m.mu.Unlock()

	m.publish(&shared.SessionStartedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventSessionStarted, sess.ID.String()),
		TokenHash:  ident.UserID,
		TrackCount: len(m.catalog.All()),
	})
	m.logger.Debug("session started",
		logger.SessionID(sess.ID.String()),
		logger.TokenHash(ident.UserID),
	)

	launch := func() {
		if !m.track() {
			return
		}
		go func() {
			defer m.wg.Done()
			m.launchSweep(ctx, sess)
		}()
	}
	if immediate {
		m.debouncer.Flush(launch)
	} else {
		m.debouncer.Call(launch)
	}
	return sess, nil
}

// Get returns a snapshot of a session. Sessions no longer in memory are
// looked up in the store, so completed work survives a restart.
func (m *Manager) Get(id shared.SessionID) (Snapshot, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess.Snapshot(), nil
	}

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var snap Snapshot
		if err := m.store.Load(ctx, id.String(), &snap); err == nil {
			return snap, nil
		}
	}
	return Snapshot{}, shared.ErrSessionNotFound
}

// Current returns the snapshot of the active session, if any.
func (m *Manager) Current() (Snapshot, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[m.currentID]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return sess.Snapshot(), true
}

// RetryTrack re-resolves one failed track on demand. Manual retries bypass
// the auto-retry cap; only the failed state can re-enter resolution.
func (m *Manager) RetryTrack(id shared.SessionID, trackID string) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return shared.ErrSessionNotFound
	}
	if sess.IsSuperseded() {
		return shared.ErrSessionStale
	}
	if _, _, ok := m.catalog.Find(trackID); !ok {
		return shared.ErrInvalidTrack
	}

	current, ok := sess.Result(trackID)
	if !ok {
		return shared.ErrInvalidTrack
	}
	if !sess.Apply(sess.Generation, trackID, leaderboard.Retrying(current.Attempts+1)) {
		return shared.NewDomainError("session", "RetryTrack", shared.ErrStateTransition,
			"track is not in a retryable state")
	}

	m.publish(&shared.TrackRetryingEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventTrackRetrying, id.String()),
		TrackID:   trackID,
		Attempts:  current.Attempts + 1,
		Manual:    true,
	})

	ctx := m.sessionContext(id)
	if !m.track() {
		return shared.NewDomainError("session", "RetryTrack", shared.ErrInvalidState, "manager is closed")
	}
	go func() {
		defer m.wg.Done()
		m.resolveTrack(ctx, sess, trackID, current.Attempts+1)
	}()
	return nil
}

// SweepAutoRetries re-queues every failed track still under the attempt cap
// in the active session. Called on an interval by the scheduler; each cycle
// adds one attempt per eligible track, so a persistently failing track
// settles permanently once it reaches the cap.
func (m *Manager) SweepAutoRetries(ctx context.Context) (eligible int, err error) {
	m.mu.RLock()
	sess, ok := m.sessions[m.currentID]
	m.mu.RUnlock()
	if !ok || sess.IsSuperseded() {
		return 0, nil
	}

	tracks, skipped := sess.FailedTracks(m.cfg.MaxAutoRetries)
	if len(tracks) == 0 && skipped == 0 {
		return 0, nil
	}

	m.publish(&shared.AutoRetrySweepEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventAutoRetrySweep, sess.ID.String()),
		Eligible:  len(tracks),
		Skipped:   skipped,
	})

	sctx := m.sessionContext(sess.ID)
	for i, trackID := range tracks {
		trackID := trackID
		current, ok := sess.Result(trackID)
		if !ok || !current.CanAutoRetry(m.cfg.MaxAutoRetries) {
			continue
		}
		if !sess.Apply(sess.Generation, trackID, leaderboard.Retrying(current.Attempts+1)) {
			continue
		}

		m.publish(&shared.TrackRetryingEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventTrackRetrying, sess.ID.String()),
			TrackID:   trackID,
			Attempts:  current.Attempts + 1,
			Manual:    false,
		})

		if i > 0 {
			select {
			case <-ctx.Done():
				return len(tracks), ctx.Err()
			case <-time.After(m.cfg.Stagger):
			}
		}

		if !m.track() {
			return len(tracks), nil
		}
		go func() {
			defer m.wg.Done()
			m.resolveTrack(sctx, sess, trackID, current.Attempts+1)
		}()
	}
	return len(tracks), nil
}

// Close supersedes the active session, cancels all in-flight work and waits
// for it to drain.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for _, lc := range m.live {
		lc.cancel()
	}
	m.mu.Unlock()

	m.debouncer.Cancel()
	m.wg.Wait()
}

// track registers one unit of background work under the wait group. Taking
// the write lock closes the window between a closed check and the Add that
// Close's Wait could otherwise race through.
func (m *Manager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP INTERNALS
// ══════════════════════════════════════════════════════════════════════════════

// launchSweep fires one resolution per catalog track, spaced by the
// configured stagger.
func (m *Manager) launchSweep(ctx context.Context, sess *Session) {
	for i, desc := range m.catalog.All() {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.Stagger):
			}
		}

		trackID := desc.ID
		if !m.track() {
			return
		}
		go func() {
			defer m.wg.Done()
			m.resolveTrack(ctx, sess, trackID, 0)
		}()
	}
}

// resolveTrack settles one slot and publishes the outcome. Results from a
// superseded generation are dropped by Apply.
func (m *Manager) resolveTrack(ctx context.Context, sess *Session, trackID string, priorAttempts int) {
	if ctx.Err() != nil {
		return
	}

	result := m.resolver.Resolve(ctx, trackID, sess.Identity.UserID, sess.OnlyVerified, priorAttempts)
	if !sess.Apply(sess.Generation, trackID, result) {
		return
	}

	switch result.Status {
	case leaderboard.StatusFailed:
		m.publish(&shared.TrackFailedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventTrackFailed, sess.ID.String()),
			TrackID:   trackID,
			Attempts:  result.Attempts,
			Message:   result.Message,
		})
	default:
		m.publish(&shared.TrackResolvedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventTrackResolved, sess.ID.String()),
			TrackID:   trackID,
			Status:    result.Status.String(),
		})
	}

	if sess.IsComplete() {
		m.finishSession(sess)
	}
}

// finishSession emits the completion event and persists the final snapshot.
func (m *Manager) finishSession(sess *Session) {
	snap := sess.Snapshot()

	m.publish(&shared.SessionCompletedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSessionCompleted, sess.ID.String()),
		Found:     snap.Counts.Found,
		NotFound:  snap.Counts.NotFound,
		Failed:    snap.Counts.Failed,
	})

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := m.store.Save(ctx, sess.ID.String(), snap); err != nil {
			m.logger.Warn("session persist failed", logger.SessionID(sess.ID.String()), logger.Err(err))
		}
	}
}

// supersedeCurrentLocked retires the active session in favor of successorID.
func (m *Manager) supersedeCurrentLocked(successorID shared.SessionID) {
	old, ok := m.sessions[m.currentID]
	if !ok {
		return
	}

	old.Supersede()
	if lc, ok := m.live[old.ID]; ok {
		lc.cancel()
		delete(m.live, old.ID)
	}

	ev := &shared.SessionSupersededEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventSessionSuperseded, old.ID.String()),
		SupersededBy: successorID.String(),
	}
	// Publish outside the lock.
	go m.publish(ev)
}

// PruneSuperseded removes superseded sessions older than the given age and
// returns how many were dropped. The current session is never pruned;
// persisted copies of pruned sessions are dropped from the store too.
func (m *Manager) PruneSuperseded(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	m.mu.Lock()
	var prunedIDs []shared.SessionID
	for id, s := range m.sessions {
		if id == m.currentID || !s.IsSuperseded() {
			continue
		}
		if s.StartedAt.Time().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		if lc, ok := m.live[id]; ok {
			lc.cancel()
			delete(m.live, id)
		}
		prunedIDs = append(prunedIDs, id)
	}
	m.mu.Unlock()

	// Store deletes happen outside the lock.
	if m.store != nil && len(prunedIDs) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for _, id := range prunedIDs {
			if err := m.store.Delete(ctx, id.String()); err != nil {
				m.logger.Warn("session store delete failed", logger.SessionID(id.String()), logger.Err(err))
			}
		}
	}

	if len(prunedIDs) > 0 {
		m.logger.Debug("pruned superseded sessions", "count", len(prunedIDs))
	}
	return len(prunedIDs)
}

// evictLocked drops the oldest superseded sessions once the map is full.
func (m *Manager) evictLocked() {
	for len(m.sessions) >= m.cfg.MaxSessions {
		var (
			oldestID shared.SessionID
			oldest   shared.Timestamp
			found    bool
		)
		for id, s := range m.sessions {
			if id == m.currentID && !s.IsSuperseded() {
				continue
			}
			if !found || s.StartedAt.Before(oldest) {
				oldestID, oldest, found = id, s.StartedAt, true
			}
		}
		if !found {
			return
		}
		delete(m.sessions, oldestID)
		if lc, ok := m.live[oldestID]; ok {
			lc.cancel()
			delete(m.live, oldestID)
		}
	}
}

// sessionContext returns the cancellation scope for a session's work. An
// already-retired session gets a cancelled context so new work no-ops.
func (m *Manager) sessionContext(id shared.SessionID) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if lc, ok := m.live[id]; ok {
		return lc.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (m *Manager) publish(ev shared.Event) {
	m.mu.RLock()
	subs := make([]shared.Subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.RUnlock()

	for _, s := range subs {
		s.Notify(ev)
	}
}
