// Package identity resolves user-supplied input into the canonical
// identifier the leaderboard service keys entries by: the lowercase hex
// SHA-256 digest of the player's secret token. Raw IDs pass through
// verbatim, tokens are hashed locally, and rank numbers are resolved with a
// single positional query.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Mythses/polystat/internal/domain/shared"
	"github.com/Mythses/polystat/internal/domain/track"
	"github.com/Mythses/polystat/internal/infrastructure/external/polytrack"
	"github.com/Mythses/polystat/pkg/logger"
)

// InputKind selects how the raw input is interpreted.
type InputKind string

const (
	// KindUserID - the input is already the canonical identifier.
	KindUserID InputKind = "user_id"
	// KindUserToken - the input is a secret token; its SHA-256 digest
	// becomes the identifier.
	KindUserToken InputKind = "user_token"
	// KindRankNumber - the input is a 1-based position on a specific track.
	KindRankNumber InputKind = "rank_number"
)

// ParseKind validates an input-kind string.
func ParseKind(s string) (InputKind, error) {
	switch InputKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindUserID:
		return KindUserID, nil
	case KindUserToken:
		return KindUserToken, nil
	case KindRankNumber:
		return KindRankNumber, nil
	default:
		return "", shared.NewDomainError("identity", "ParseKind", shared.ErrInvalidInput,
			fmt.Sprintf("unknown input kind %q", s))
	}
}

// Identity is the outcome of resolution: the canonical identifier plus
// whatever display profile could be established along the way.
type Identity struct {
	// UserID is the canonical identifier for leaderboard queries.
	UserID string `json:"userId"`

	// Name is the player's display name, when known.
	Name string `json:"name,omitempty"`

	// CarColors is the encoded car color string, when known.
	CarColors string `json:"carColors,omitempty"`

	// IsVerifier reports verifier status. Nil when the lookup path cannot
	// establish it (raw-ID input has no token to ask the user endpoint with).
	IsVerifier *bool `json:"isVerifier,omitempty"`
}

// standingClient is the slice of the Polytrack client this package needs.
type standingClient interface {
	FetchPage(ctx context.Context, req polytrack.PageRequest) (*polytrack.PageDTO, error)
	FetchUserInfo(ctx context.Context, userToken string) (*polytrack.UserInfoDTO, error)
}

// profileCache stores resolved display profiles. A profile lookup scans the
// whole catalog in the worst case, so hits here save dozens of upstream
// calls. Implemented by the Redis layer.
type profileCache interface {
	GetProfile(ctx context.Context, userID string) (name, carColors string, ok bool)
	SetProfile(ctx context.Context, userID, name, carColors string) error
}

// Resolver turns raw input into an Identity.
type Resolver struct {
	client   standingClient
	catalog  *track.Catalog
	profiles profileCache
	logger   *slog.Logger
}

// NewResolver creates a Resolver. The catalog is used when a profile must be
// discovered by scanning tracks for a raw-ID input.
func NewResolver(client standingClient, catalog *track.Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{client: client, catalog: catalog, logger: logger}
}

// WithProfileCache attaches a profile cache. Without one every profile
// lookup goes upstream.
func (r *Resolver) WithProfileCache(cache profileCache) *Resolver {
	r.profiles = cache
	return r
}

// HashToken computes the canonical identifier for a secret token: the
// lowercase hex SHA-256 digest.
func HashToken(token shared.UserToken) (shared.TokenHash, error) {
	if !token.IsValid() {
		return "", shared.ErrEmptyToken
	}
	sum := sha256.Sum256([]byte(token.Normalize()))
	return shared.TokenHash(hex.EncodeToString(sum[:])), nil
}

// Resolve produces the canonical identifier for the given input. trackID is
// only consulted for rank-number input.
func (r *Resolver) Resolve(ctx context.Context, input string, kind InputKind, trackID string) (Identity, error) {
	switch kind {
	case KindUserID:
		id := strings.TrimSpace(input)
		if id == "" {
			return Identity{}, shared.NewDomainError("identity", "Resolve", shared.ErrEmptyValue, "user id cannot be empty")
		}
		return Identity{UserID: id}, nil

	case KindUserToken:
		token, err := shared.NewUserToken(input)
		if err != nil {
			return Identity{}, err
		}
		hash, err := HashToken(token)
		if err != nil {
			return Identity{}, shared.WrapError("identity", "Resolve", shared.ErrHashing, "failed to hash user token", err)
		}
		ident := Identity{UserID: hash.String()}

		// The token also unlocks the display profile; losing that lookup
		// does not invalidate the identifier itself.
		if info, err := r.client.FetchUserInfo(ctx, string(token)); err == nil {
			ident.Name = info.Name
			ident.CarColors = info.CarColors
			verifier := info.IsVerifier
			ident.IsVerifier = &verifier
			r.storeProfile(ctx, ident)
		} else {
			r.logger.Warn("user info lookup failed", logger.Err(err))
		}
		return ident, nil

	case KindRankNumber:
		return r.resolveByRank(ctx, input, trackID)

	default:
		return Identity{}, shared.NewDomainError("identity", "Resolve", shared.ErrInvalidInput,
			fmt.Sprintf("unknown input kind %q", kind))
	}
}

// resolveByRank fetches the single entry at position r on the track and
// adopts its user identifier.
func (r *Resolver) resolveByRank(ctx context.Context, input, trackID string) (Identity, error) {
	rank, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || rank < 1 {
		return Identity{}, shared.NewDomainError("identity", "Resolve", shared.ErrInvalidInput,
			fmt.Sprintf("rank must be a positive integer, got %q", input))
	}
	if trackID == "" {
		return Identity{}, shared.NewDomainError("identity", "Resolve", shared.ErrEmptyValue, "rank lookup requires a track id")
	}

	page, err := r.client.FetchPage(ctx, polytrack.PageRequest{
		TrackID: trackID,
		Skip:    rank - 1,
		Amount:  1,
	})
	if err != nil {
		return Identity{}, shared.WrapError("identity", "Resolve", shared.ErrExternalService, "rank lookup failed", err)
	}
	if len(page.Entries) == 0 {
		return Identity{}, shared.NewDomainError("identity", "Resolve", shared.ErrNotFound,
			fmt.Sprintf("no entry at rank %d", rank))
	}

	e := page.Entries[0]
	return Identity{UserID: e.UserID, Name: e.Name, CarColors: e.CarColors}, nil
}

// LookupProfile discovers the display profile for a canonical identifier by
// scanning the catalog: the first track where the user has a standing yields
// name and car colors via a second positional query. Verifier status cannot
// be established without a token.
func (r *Resolver) LookupProfile(ctx context.Context, userID string, onlyVerified bool) (Identity, error) {
	ident := Identity{UserID: userID}

	if r.profiles != nil {
		if name, carColors, ok := r.profiles.GetProfile(ctx, userID); ok {
			ident.Name = name
			ident.CarColors = carColors
			return ident, nil
		}
	}

	for _, desc := range r.catalog.All() {
		probe, err := r.client.FetchPage(ctx, polytrack.PageRequest{
			TrackID:       desc.ID,
			Skip:          0,
			Amount:        1,
			OnlyVerified:  onlyVerified,
			UserTokenHash: userID,
		})
		if err != nil || probe.UserEntry == nil {
			continue
		}

		// The probe's userEntry carries position but not always a usable
		// profile; re-read the entry at its own offset.
		skip := 0
		if probe.UserEntry.Position > 1 {
			skip = probe.UserEntry.Position - 1
		}
		window, err := r.client.FetchPage(ctx, polytrack.PageRequest{
			TrackID:      desc.ID,
			Skip:         skip,
			Amount:       1,
			OnlyVerified: onlyVerified,
		})
		if err != nil || len(window.Entries) == 0 {
			continue
		}

		ident.Name = window.Entries[0].Name
		ident.CarColors = window.Entries[0].CarColors
		r.storeProfile(ctx, ident)
		return ident, nil
	}

	return ident, shared.ErrUserNotFound
}

// storeProfile records a resolved profile, best effort.
func (r *Resolver) storeProfile(ctx context.Context, ident Identity) {
	if r.profiles == nil {
		return
	}
	if err := r.profiles.SetProfile(ctx, ident.UserID, ident.Name, ident.CarColors); err != nil {
		r.logger.Warn("profile cache write failed", logger.Err(err))
	}
}
