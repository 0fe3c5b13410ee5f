package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/infrastructure/external/polytrack"
	"github.com/Mythses/polystat/pkg/logger"
	"github.com/Mythses/polystat/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRACK RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// standingProber is the slice of the Polytrack client the resolver needs.
type standingProber interface {
	ProbeStanding(ctx context.Context, trackID, tokenHash string, onlyVerified bool) (*polytrack.PageDTO, error)
}

// TrackResolver settles one track slot for one user. The retry budget lives
// here, not in the client: the attempt count it consumes is part of the
// result and feeds the auto-retry cap.
type TrackResolver struct {
	client  standingProber
	mapper  *polytrack.Mapper
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewTrackResolver creates a resolver. A nil retrier gets the standard
// Polytrack budget of four attempts with exponential backoff.
func NewTrackResolver(client standingProber, retrier *retry.Retrier, logger *slog.Logger) *TrackResolver {
	if retrier == nil {
		retrier = retry.PolytrackRetrier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackResolver{
		client:  client,
		mapper:  polytrack.NewMapper(),
		retrier: retrier,
		logger:  logger,
	}
}

// Resolve settles one track. priorAttempts is the cumulative counter carried
// by a retrying slot; zero marks a first resolution. A first failure records
// the HTTP attempts it consumed, a renewed failure keeps the carried counter
// so each retry cycle costs exactly one step toward the auto-retry cap.
//
// A 404 and a 200 with a null userEntry both settle as not-found; only
// transport-level failures consume the retry budget and can end in a failed
// slot.
func (r *TrackResolver) Resolve(ctx context.Context, trackID, userID string, onlyVerified bool, priorAttempts int) leaderboard.PerTrackResult {
	var (
		entry    leaderboard.Entry
		hasEntry bool
	)

	attempts, err := r.retrier.DoCount(ctx, func(ctx context.Context) error {
		page, err := r.client.ProbeStanding(ctx, trackID, userID, onlyVerified)
		if err != nil {
			var fe *polytrack.FetchError
			if errors.As(err, &fe) && fe.IsNotFound() {
				hasEntry = false
				return nil
			}
			if polytrack.IsRetryable(err) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		}

		entry, hasEntry = r.mapper.StandingFromDTO(page)
		return nil
	})

	total := attempts
	if priorAttempts > 0 {
		total = priorAttempts
	}

	if err != nil {
		r.logger.Debug("track resolution failed",
			logger.TrackID(trackID),
			logger.Attempt(total),
			logger.Err(err))
		result := leaderboard.Failed(err.Error(), total)
		return result
	}

	if !hasEntry {
		result := leaderboard.NotFound()
		result.Attempts = total
		return result
	}

	r.logger.Debug("standing resolved",
		logger.TrackID(trackID),
		slog.String("time", entry.Frames.String()),
		logger.RankPosition(int(entry.Rank)))

	result := leaderboard.Found(entry)
	result.Attempts = total
	return result
}
