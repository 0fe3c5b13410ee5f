package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mythses/polystat/internal/application/identity"
	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/domain/shared"
	"github.com/Mythses/polystat/internal/domain/track"
	"github.com/Mythses/polystat/internal/infrastructure/external/polytrack"
	"github.com/Mythses/polystat/pkg/retry"
)

// fakeProber scripts per-track outcomes and counts probes.
type fakeProber struct {
	mu      sync.Mutex
	calls   map[string]int
	failAll bool
	found   map[string]int // trackID -> position
	total   int
	release chan struct{} // when set, probes block until closed
}

func newFakeProber() *fakeProber {
	return &fakeProber{calls: make(map[string]int), found: make(map[string]int), total: 100}
}

func (f *fakeProber) ProbeStanding(ctx context.Context, trackID, tokenHash string, onlyVerified bool) (*polytrack.PageDTO, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[trackID]++

	if f.failAll {
		return nil, &polytrack.FetchError{StatusCode: http.StatusBadGateway, Endpoint: "leaderboard"}
	}
	pos, ok := f.found[trackID]
	if !ok {
		return &polytrack.PageDTO{Total: f.total}, nil
	}
	return &polytrack.PageDTO{
		Total:     f.total,
		UserEntry: &polytrack.EntryDTO{UserID: tokenHash, Frames: 60000, Position: pos},
	}, nil
}

func (f *fakeProber) callCount(trackID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[trackID]
}

func fastRetrier() *retry.Retrier {
	return retry.New(
		retry.WithMaxAttempts(4),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
	)
}

func fastConfig() Config {
	return Config{
		Stagger:          time.Millisecond,
		MaxAutoRetries:   5,
		DebounceInterval: 5 * time.Millisecond,
		MaxSessions:      8,
	}
}

func subjectIdentity() identity.Identity {
	return identity.Identity{UserID: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

func TestSessionApplyEnforcesTransitions(t *testing.T) {
	catalog := track.MustDefault()
	sess := NewSession(subjectIdentity(), catalog, 1, false)
	trackID := catalog.Official[0].ID

	assert.True(t, sess.Apply(1, trackID, leaderboard.NotFound()))
	// NotFound is terminal.
	assert.False(t, sess.Apply(1, trackID, leaderboard.Retrying(1)))
	assert.False(t, sess.Apply(1, trackID, leaderboard.Failed("late", 4)))
}

func TestSessionApplyRejectsStaleGeneration(t *testing.T) {
	catalog := track.MustDefault()
	sess := NewSession(subjectIdentity(), catalog, 2, false)
	trackID := catalog.Official[0].ID

	assert.False(t, sess.Apply(1, trackID, leaderboard.NotFound()))
	r, _ := sess.Result(trackID)
	assert.Equal(t, leaderboard.StatusPending, r.Status)

	assert.True(t, sess.Apply(2, trackID, leaderboard.NotFound()))
}

func TestSessionApplyRejectsAfterSupersede(t *testing.T) {
	catalog := track.MustDefault()
	sess := NewSession(subjectIdentity(), catalog, 1, false)
	sess.Supersede()

	assert.False(t, sess.Apply(1, catalog.Official[0].ID, leaderboard.NotFound()))
}

func TestSnapshotPreservesCatalogOrder(t *testing.T) {
	catalog := track.MustDefault()
	sess := NewSession(subjectIdentity(), catalog, 1, false)

	snap := sess.Snapshot()
	require.Len(t, snap.Slots, len(catalog.All()))
	for i, d := range catalog.All() {
		assert.Equal(t, d.ID, snap.Slots[i].TrackID)
	}
	assert.Equal(t, len(catalog.All()), snap.Counts.Pending)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACK RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

func TestResolveConsumesExactlyFourAttempts(t *testing.T) {
	prober := newFakeProber()
	prober.failAll = true
	r := NewTrackResolver(prober, fastRetrier(), nil)

	result := r.Resolve(context.Background(), "track-x", "user", false, 0)

	assert.Equal(t, leaderboard.StatusFailed, result.Status)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, 4, prober.callCount("track-x"))
	assert.NotEmpty(t, result.Message)
}

func TestResolveRenewedFailureKeepsCycleCounter(t *testing.T) {
	prober := newFakeProber()
	prober.failAll = true
	r := NewTrackResolver(prober, fastRetrier(), nil)

	result := r.Resolve(context.Background(), "track-x", "user", false, 5)
	assert.Equal(t, leaderboard.StatusFailed, result.Status)
	assert.Equal(t, 5, result.Attempts)
}

func TestResolveFound(t *testing.T) {
	prober := newFakeProber()
	prober.found["track-x"] = 10
	r := NewTrackResolver(prober, fastRetrier(), nil)

	result := r.Resolve(context.Background(), "track-x", "user", false, 0)

	require.Equal(t, leaderboard.StatusFound, result.Status)
	require.NotNil(t, result.Entry)
	assert.Equal(t, leaderboard.Position(10), result.Entry.Rank)
	assert.InDelta(t, 10.0, float64(result.Entry.Percent), 1e-9)
	assert.Equal(t, 1, prober.callCount("track-x"))
}

func TestResolveNullUserEntryIsNotFound(t *testing.T) {
	prober := newFakeProber()
	r := NewTrackResolver(prober, fastRetrier(), nil)

	result := r.Resolve(context.Background(), "track-x", "user", false, 0)
	assert.Equal(t, leaderboard.StatusNotFound, result.Status)
	assert.Equal(t, 1, prober.callCount("track-x"))
}

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// fakeStore implements sessionStore in memory, round-tripping snapshots
// through JSON the way the Redis store does.
type fakeStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string][]byte)}
}

func (f *fakeStore) Save(ctx context.Context, sessionID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[sessionID] = data
	return nil
}

func (f *fakeStore) Load(ctx context.Context, sessionID string, dest interface{}) error {
	f.mu.Lock()
	data, ok := f.saved[sessionID]
	f.mu.Unlock()
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(data, dest)
}

func (f *fakeStore) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, sessionID)
	return nil
}

func (f *fakeStore) has(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.saved[sessionID]
	return ok
}

func newTestManager(prober *fakeProber) *Manager {
	resolver := NewTrackResolver(prober, fastRetrier(), nil)
	return NewManager(resolver, track.MustDefault(), fastConfig(), nil, nil)
}

func newStoredManager(prober *fakeProber, store *fakeStore) *Manager {
	resolver := NewTrackResolver(prober, fastRetrier(), nil)
	return NewManager(resolver, track.MustDefault(), fastConfig(), store, nil)
}

func TestManagerSweepCompletes(t *testing.T) {
	catalog := track.MustDefault()
	prober := newFakeProber()
	prober.found[catalog.Official[0].ID] = 3
	prober.found[catalog.Community[0].ID] = 7

	m := newTestManager(prober)
	defer m.Close()

	sess, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)

	require.Eventually(t, sess.IsComplete, 5*time.Second, 10*time.Millisecond)

	snap := sess.Snapshot()
	assert.Equal(t, 2, snap.Counts.Found)
	assert.Equal(t, len(catalog.All())-2, snap.Counts.NotFound)
	assert.Zero(t, snap.Counts.Failed)
	assert.True(t, snap.Complete)
}

func TestManagerNewSearchSupersedesOld(t *testing.T) {
	prober := newFakeProber()
	prober.release = make(chan struct{})

	m := newTestManager(prober)
	defer m.Close()

	first, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)

	second, err := m.Start(identity.Identity{UserID: "someone-else"}, false, true)
	require.NoError(t, err)

	close(prober.release)

	assert.True(t, first.IsSuperseded())
	require.Eventually(t, second.IsComplete, 5*time.Second, 10*time.Millisecond)

	// Nothing from the first sweep may have landed.
	firstSnap := first.Snapshot()
	assert.Zero(t, firstSnap.Counts.Found)
	assert.Zero(t, firstSnap.Counts.NotFound)
	assert.True(t, firstSnap.Superseded)
}

func TestManagerDebouncedStartsCollapse(t *testing.T) {
	prober := newFakeProber()
	m := newTestManager(prober)
	defer m.Close()

	first, err := m.Start(subjectIdentity(), false, false)
	require.NoError(t, err)
	second, err := m.Start(subjectIdentity(), false, false)
	require.NoError(t, err)

	assert.True(t, first.IsSuperseded())
	require.Eventually(t, second.IsComplete, 5*time.Second, 10*time.Millisecond)

	// The superseded session never swept: its slots are all still pending.
	snap := first.Snapshot()
	assert.Equal(t, len(track.MustDefault().All()), snap.Counts.Pending)
}

func TestManagerAutoRetryTerminatesAtCap(t *testing.T) {
	catalog := track.MustDefault()
	prober := newFakeProber()
	prober.failAll = true

	m := newTestManager(prober)
	defer m.Close()

	sess, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)
	require.Eventually(t, sess.IsComplete, 10*time.Second, 10*time.Millisecond)

	trackID := catalog.Official[0].ID
	r, _ := sess.Result(trackID)
	require.Equal(t, leaderboard.StatusFailed, r.Status)
	require.Equal(t, 4, r.Attempts)

	// First sweep: every track is eligible (4 < 5) and fails again at 5.
	eligible, err := m.SweepAutoRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(catalog.All()), eligible)

	require.Eventually(t, func() bool {
		res, _ := sess.Result(trackID)
		return res.Status == leaderboard.StatusFailed && res.Attempts == 5
	}, 10*time.Second, 10*time.Millisecond)

	// Second sweep: everything sits at the cap, nothing is picked up.
	require.Eventually(t, sess.IsComplete, 10*time.Second, 10*time.Millisecond)
	eligible, err = m.SweepAutoRetries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, eligible)
}

func TestManagerManualRetryBypassesCap(t *testing.T) {
	catalog := track.MustDefault()
	prober := newFakeProber()
	prober.failAll = true

	m := newTestManager(prober)
	defer m.Close()

	sess, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)
	require.Eventually(t, sess.IsComplete, 10*time.Second, 10*time.Millisecond)

	trackID := catalog.Official[0].ID

	// Push the slot past the auto-retry cap.
	require.True(t, sess.Apply(sess.Generation, trackID, leaderboard.Retrying(5)))
	require.True(t, sess.Apply(sess.Generation, trackID, leaderboard.Failed("still down", 5)))

	// Auto-retry would skip it; a manual request still goes through.
	prober.mu.Lock()
	prober.failAll = false
	prober.found[trackID] = 2
	prober.mu.Unlock()

	require.NoError(t, m.RetryTrack(sess.ID, trackID))

	require.Eventually(t, func() bool {
		res, _ := sess.Result(trackID)
		return res.Status == leaderboard.StatusFound
	}, 10*time.Second, 10*time.Millisecond)
}

func TestManagerRetryTrackErrors(t *testing.T) {
	prober := newFakeProber()
	m := newTestManager(prober)
	defer m.Close()

	sess, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)
	require.Eventually(t, sess.IsComplete, 5*time.Second, 10*time.Millisecond)

	err = m.RetryTrack("00000000-0000-0000-0000-000000000000", "whatever")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	err = m.RetryTrack(sess.ID, "not-a-track")
	assert.ErrorIs(t, err, shared.ErrInvalidTrack)

	// Settled not-found slots are terminal; retry is refused.
	err = m.RetryTrack(sess.ID, track.MustDefault().Official[0].ID)
	assert.Error(t, err)
}

func TestManagerGetRestoresFromStore(t *testing.T) {
	catalog := track.MustDefault()
	prober := newFakeProber()
	prober.found[catalog.Official[0].ID] = 3
	store := newFakeStore()

	m := newStoredManager(prober, store)
	sess, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)
	require.Eventually(t, sess.IsComplete, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return store.has(sess.ID.String()) },
		5*time.Second, 10*time.Millisecond)
	m.Close()

	// A fresh manager knows nothing in memory; the snapshot comes back from
	// the store.
	fresh := newStoredManager(newFakeProber(), store)
	defer fresh.Close()

	snap, err := fresh.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, snap.ID)
	assert.Equal(t, 1, snap.Counts.Found)
	assert.True(t, snap.Complete)

	_, err = fresh.Get("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestManagerPruneDropsPersistedCopy(t *testing.T) {
	prober := newFakeProber()
	store := newFakeStore()

	m := newStoredManager(prober, store)
	defer m.Close()

	first, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)
	require.Eventually(t, first.IsComplete, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return store.has(first.ID.String()) },
		5*time.Second, 10*time.Millisecond)

	second, err := m.Start(identity.Identity{UserID: "someone-else"}, false, true)
	require.NoError(t, err)
	require.Eventually(t, second.IsComplete, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, m.PruneSuperseded(0))
	assert.False(t, store.has(first.ID.String()))
}

func TestManagerClosedRefusesWork(t *testing.T) {
	catalog := track.MustDefault()
	prober := newFakeProber()
	prober.failAll = true

	m := newTestManager(prober)
	sess, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)
	require.Eventually(t, sess.IsComplete, 10*time.Second, 10*time.Millisecond)

	m.Close()

	_, err = m.Start(subjectIdentity(), false, true)
	assert.Error(t, err)

	err = m.RetryTrack(sess.ID, catalog.Official[0].ID)
	assert.Error(t, err)

	// The sweep finds eligible tracks but launches nothing once closed.
	_, err = m.SweepAutoRetries(context.Background())
	assert.NoError(t, err)

	// Close is idempotent with respect to drained work.
	m.Close()
}

func TestManagerEventsFlow(t *testing.T) {
	prober := newFakeProber()
	m := newTestManager(prober)
	defer m.Close()

	var mu sync.Mutex
	seen := make(map[shared.EventType]int)
	m.Subscribe(shared.SubscriberFunc(func(ev shared.Event) {
		mu.Lock()
		seen[ev.EventType()]++
		mu.Unlock()
	}))

	sess, err := m.Start(subjectIdentity(), false, true)
	require.NoError(t, err)
	require.Eventually(t, sess.IsComplete, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[shared.EventSessionCompleted] >= 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[shared.EventSessionStarted])
	assert.Equal(t, len(track.MustDefault().All()), seen[shared.EventTrackResolved])
}
