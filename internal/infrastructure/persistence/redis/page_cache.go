package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mythses/polystat/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAGE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// PageCache is a read-through cache for leaderboard pages and per-track
// standings. Pages are only cached for anonymous browsing; a page carrying a
// subject's standing is personal and skipped. Failures degrade to upstream
// fetches, never to request errors.
type PageCache struct {
	cache *Cache

	pageTTL     time.Duration
	standingTTL time.Duration
	profileTTL  time.Duration
}

// NewPageCache creates a PageCache with the default TTLs.
func NewPageCache(cache *Cache) *PageCache {
	return &PageCache{
		cache:       cache,
		pageTTL:     TTLPage,
		standingTTL: TTLStanding,
		profileTTL:  TTLProfile,
	}
}

// WithTTLs overrides the page and profile lifetimes. Zero values keep the
// defaults.
func (pc *PageCache) WithTTLs(page, profile time.Duration) *PageCache {
	if page > 0 {
		pc.pageTTL = page
	}
	if profile > 0 {
		pc.profileTTL = profile
	}
	return pc
}

// GetPage looks up a cached page. The bool result reports a hit; errors are
// swallowed into a miss so a broken Redis never breaks browsing.
func (pc *PageCache) GetPage(ctx context.Context, trackID string, page int, onlyVerified bool) (*leaderboard.Page, bool) {
	if pc == nil || pc.cache == nil {
		return nil, false
	}

	var cached leaderboard.Page
	err := pc.cache.Get(ctx, PageKey(trackID, page, onlyVerified), &cached)
	if err != nil {
		return nil, false
	}
	return &cached, true
}

// SetPage stores a page. Pages with a subject standing attached are not
// cached.
func (pc *PageCache) SetPage(ctx context.Context, trackID string, page int, onlyVerified bool, value *leaderboard.Page) error {
	if pc == nil || pc.cache == nil || value == nil {
		return nil
	}
	if value.UserEntry != nil {
		return nil
	}

	return pc.cache.Set(ctx, PageKey(trackID, page, onlyVerified), value, pc.pageTTL)
}

// ══════════════════════════════════════════════════════════════════════════════
// STANDING CACHE
// ══════════════════════════════════════════════════════════════════════════════

// GetStanding looks up a cached per-track standing. The verified-only and
// unfiltered boards rank independently, so they cache under separate keys. A
// cached "no record" outcome is represented by a hit with a nil entry.
func (pc *PageCache) GetStanding(ctx context.Context, trackID, userID string, onlyVerified bool) (*leaderboard.Entry, bool) {
	if pc == nil || pc.cache == nil {
		return nil, false
	}

	var cached standingRecord
	err := pc.cache.Get(ctx, StandingKey(trackID, userID, onlyVerified), &cached)
	if err != nil {
		return nil, false
	}
	return cached.Entry, true
}

// SetStanding stores a per-track standing. A nil entry caches the "no
// record" outcome, which is as valuable as a hit when a player only runs a
// handful of tracks.
func (pc *PageCache) SetStanding(ctx context.Context, trackID, userID string, onlyVerified bool, entry *leaderboard.Entry) error {
	if pc == nil || pc.cache == nil {
		return nil
	}

	return pc.cache.Set(ctx, StandingKey(trackID, userID, onlyVerified), standingRecord{Entry: entry}, pc.standingTTL)
}

// standingRecord wraps the entry so a nil entry round-trips as an explicit
// "no record" value instead of a miss.
type standingRecord struct {
	Entry *leaderboard.Entry `json:"entry"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// profileRecord is the cached slice of a resolved identity.
type profileRecord struct {
	Name      string `json:"name,omitempty"`
	CarColors string `json:"carColors,omitempty"`
}

// GetProfile looks up a cached profile.
func (pc *PageCache) GetProfile(ctx context.Context, userID string) (name, carColors string, ok bool) {
	if pc == nil || pc.cache == nil {
		return "", "", false
	}

	var cached profileRecord
	err := pc.cache.Get(ctx, ProfileKey(userID), &cached)
	if err != nil {
		return "", "", false
	}
	return cached.Name, cached.CarColors, true
}

// SetProfile stores a resolved profile.
func (pc *PageCache) SetProfile(ctx context.Context, userID, name, carColors string) error {
	if pc == nil || pc.cache == nil || userID == "" {
		return nil
	}

	return pc.cache.Set(ctx, ProfileKey(userID), profileRecord{Name: name, CarColors: carColors}, pc.profileTTL)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STORE
// ══════════════════════════════════════════════════════════════════════════════

// SessionStore persists resolution session snapshots so completed work
// survives a restart.
type SessionStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewSessionStore creates a SessionStore with the default session TTL.
func NewSessionStore(cache *Cache) *SessionStore {
	return &SessionStore{cache: cache, ttl: TTLSession}
}

// Save persists a session snapshot under its ID.
func (s *SessionStore) Save(ctx context.Context, sessionID string, snapshot interface{}) error {
	if s == nil || s.cache == nil {
		return nil
	}
	if sessionID == "" {
		return ErrCacheKeyEmpty
	}

	return s.cache.Set(ctx, SessionKey(sessionID), snapshot, s.ttl)
}

// Load reads a session snapshot into dest. Returns ErrCacheMiss when the
// session is unknown or expired.
func (s *SessionStore) Load(ctx context.Context, sessionID string, dest interface{}) error {
	if s == nil || s.cache == nil {
		return ErrCacheMiss
	}
	if sessionID == "" {
		return ErrCacheKeyEmpty
	}

	err := s.cache.Get(ctx, SessionKey(sessionID), dest)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return err
}

// Delete removes a persisted session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.cache == nil {
		return nil
	}

	return s.cache.Delete(ctx, SessionKey(sessionID))
}
