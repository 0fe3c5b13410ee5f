// Package query contains read-side application handlers. Each handler takes
// a validated query, orchestrates client and cache calls, and returns a
// result DTO ready for the HTTP layer.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/domain/shared"
	"github.com/Mythses/polystat/internal/domain/track"
	"github.com/Mythses/polystat/internal/infrastructure/external/polytrack"
	"github.com/Mythses/polystat/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultPageSize is the leaderboard window size.
const DefaultPageSize = 10

// defaultEnrichConcurrency bounds the parallel rank probes per page.
const defaultEnrichConcurrency = 4

// FetchPageQuery requests one leaderboard page for a track.
type FetchPageQuery struct {
	// TrackID is the 64-hex track identifier.
	TrackID string

	// Page is the 1-based page number.
	Page int

	// OnlyVerified restricts the board to verified runs.
	OnlyVerified bool

	// UserID, when set, attaches the subject's own standing to the result.
	UserID string

	// IncludeRecordings attaches replay ghosts to the page entries.
	IncludeRecordings bool
}

// Validate checks query parameters.
func (q FetchPageQuery) Validate() error {
	if q.TrackID == "" {
		return shared.NewDomainError("query", "FetchPage", shared.ErrEmptyValue, "track id is required")
	}
	if q.Page < 1 {
		return shared.NewDomainError("query", "FetchPage", shared.ErrValueOutOfRange,
			fmt.Sprintf("page must be >= 1, got %d", q.Page))
	}
	return nil
}

// FetchPageResult is the handler output.
type FetchPageResult struct {
	Track leaderboard.Page `json:"leaderboard"`

	// TrackName is the catalog display name for the track.
	TrackName string `json:"trackName"`

	// FromCache reports whether the page was served from cache.
	FromCache bool `json:"fromCache"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// pageClient is the slice of the Polytrack client this handler needs.
type pageClient interface {
	FetchPage(ctx context.Context, req polytrack.PageRequest) (*polytrack.PageDTO, error)
	ProbeStanding(ctx context.Context, trackID, tokenHash string, onlyVerified bool) (*polytrack.PageDTO, error)
	FetchRecordings(ctx context.Context, ids []int64) ([]*polytrack.RecordingDTO, error)
}

// pageCache is the read-through cache surface. Implemented by the Redis
// layer; a nil-backed implementation degrades to upstream fetches.
type pageCache interface {
	GetPage(ctx context.Context, trackID string, page int, onlyVerified bool) (*leaderboard.Page, bool)
	SetPage(ctx context.Context, trackID string, page int, onlyVerified bool, value *leaderboard.Page) error
	GetStanding(ctx context.Context, trackID, userID string, onlyVerified bool) (*leaderboard.Entry, bool)
	SetStanding(ctx context.Context, trackID, userID string, onlyVerified bool, entry *leaderboard.Entry) error
}

// FetchPageHandler serves paginated leaderboard queries with per-entry rank
// enrichment.
type FetchPageHandler struct {
	client      pageClient
	cache       pageCache
	catalog     *track.Catalog
	mapper      *polytrack.Mapper
	logger      *slog.Logger
	pageSize    int
	concurrency int
	enrich      bool
	recordings  bool
}

// NewFetchPageHandler creates the handler. cache may be nil.
func NewFetchPageHandler(client pageClient, cache pageCache, catalog *track.Catalog, logger *slog.Logger) *FetchPageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchPageHandler{
		client:      client,
		cache:       cache,
		catalog:     catalog,
		mapper:      polytrack.NewMapper(),
		logger:      logger,
		pageSize:    DefaultPageSize,
		concurrency: defaultEnrichConcurrency,
		enrich:      true,
		recordings:  true,
	}
}

// WithEnrichment toggles per-entry rank probes. Disabled, every row gets the
// arithmetic rank implied by the page offset.
func (h *FetchPageHandler) WithEnrichment(enabled bool) *FetchPageHandler {
	h.enrich = enabled
	return h
}

// WithRecordings toggles replay ghost attachment, overriding what queries
// ask for.
func (h *FetchPageHandler) WithRecordings(enabled bool) *FetchPageHandler {
	h.recordings = enabled
	return h
}

// Handle executes the query.
func (h *FetchPageHandler) Handle(ctx context.Context, q FetchPageQuery) (*FetchPageResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	desc, _, ok := h.catalog.Find(q.TrackID)
	if !ok {
		return nil, shared.ErrInvalidTrack
	}

	// Anonymous pages are cacheable; a page with a subject standing is
	// personal and always fetched fresh.
	cacheable := q.UserID == "" && !q.IncludeRecordings
	if cacheable && h.cache != nil {
		if cached, hit := h.cache.GetPage(ctx, q.TrackID, q.Page, q.OnlyVerified); hit {
			return &FetchPageResult{Track: *cached, TrackName: desc.Name, FromCache: true}, nil
		}
	}

	dto, err := h.client.FetchPage(ctx, polytrack.PageRequest{
		TrackID:       q.TrackID,
		Skip:          leaderboard.SkipFor(q.Page, h.pageSize),
		Amount:        h.pageSize,
		OnlyVerified:  q.OnlyVerified,
		UserTokenHash: q.UserID,
	})
	if err != nil {
		return nil, shared.WrapError("query", "FetchPage", shared.ErrExternalService, "leaderboard fetch failed", err)
	}

	page := h.mapper.PageFromDTO(dto, q.Page, h.pageSize)
	h.enrichRanks(ctx, q, &page)

	if q.IncludeRecordings && h.recordings {
		h.attachRecordings(ctx, &page)
	}

	if cacheable && h.cache != nil {
		if err := h.cache.SetPage(ctx, q.TrackID, q.Page, q.OnlyVerified, &page); err != nil {
			h.logger.Warn("page cache write failed", logger.TrackID(q.TrackID), logger.Err(err))
		}
	}

	return &FetchPageResult{Track: page, TrackName: desc.Name}, nil
}

// enrichRanks resolves the global rank of every visible entry with one probe
// per entry. The page's own window only carries page-local order when the
// board is filtered, so each row needs its own standing query. A failed
// probe falls back to the arithmetic rank implied by the page offset.
func (h *FetchPageHandler) enrichRanks(ctx context.Context, q FetchPageQuery, page *leaderboard.Page) {
	skip := leaderboard.SkipFor(q.Page, h.pageSize)

	if !h.enrich {
		for i := range page.Entries {
			page.Entries[i] = page.Entries[i].WithStanding(leaderboard.Position(skip+i+1), page.Total)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for i := range page.Entries {
		i := i
		g.Go(func() error {
			fallback := leaderboard.Position(skip + i + 1)
			entry := &page.Entries[i]

			// Standings churn slower than pages; a cached probe outcome,
			// including a cached "no record", skips the upstream round trip.
			if h.cache != nil {
				if cached, hit := h.cache.GetStanding(gctx, q.TrackID, entry.UserID, q.OnlyVerified); hit {
					if cached == nil || !cached.Position.IsValid() {
						*entry = entry.WithStanding(fallback, page.Total)
					} else {
						*entry = entry.WithStanding(cached.Position, page.Total)
					}
					return nil
				}
			}

			probe, err := h.client.ProbeStanding(gctx, q.TrackID, entry.UserID, q.OnlyVerified)
			if err != nil {
				*entry = entry.WithStanding(fallback, page.Total)
				return nil
			}
			if probe.UserEntry == nil {
				if h.cache != nil {
					_ = h.cache.SetStanding(gctx, q.TrackID, entry.UserID, q.OnlyVerified, nil)
				}
				*entry = entry.WithStanding(fallback, page.Total)
				return nil
			}

			pos := leaderboard.Position(probe.UserEntry.Position)
			if h.cache != nil {
				_ = h.cache.SetStanding(gctx, q.TrackID, entry.UserID, q.OnlyVerified,
					&leaderboard.Entry{UserID: entry.UserID, Position: pos})
			}
			*entry = entry.WithStanding(pos, page.Total)
			return nil
		})
	}

	// Workers never return errors; the group is only a concurrency gate.
	_ = g.Wait()
}

// attachRecordings fetches replay ghosts for the page in one batch. The
// recordings endpoint answers positionally with nulls for entries that have
// no ghost.
func (h *FetchPageHandler) attachRecordings(ctx context.Context, page *leaderboard.Page) {
	if len(page.Entries) == 0 {
		return
	}

	ids := make([]int64, len(page.Entries))
	for i, e := range page.Entries {
		ids[i] = e.ID
	}

	recordings, err := h.client.FetchRecordings(ctx, ids)
	if err != nil {
		h.logger.Warn("recordings fetch failed", logger.Err(err))
		return
	}

	for i := range page.Entries {
		if i >= len(recordings) {
			break
		}
		page.Entries[i] = h.mapper.RecordingFromDTO(page.Entries[i], recordings[i])
	}
}
