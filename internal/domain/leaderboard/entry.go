// Package leaderboard contains the domain model for Polytrack leaderboard
// standings: ranked entries, result pages, percentile math, medal tiers and
// the per-track resolution state machine. This package has no third-party
// dependencies.
package leaderboard

import (
	"fmt"
	"strings"

	"github.com/Mythses/polystat/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Position is a 1-based place within the full ranking of a track.
type Position int

// IsValid reports whether the position is usable (positions start at 1).
func (p Position) IsValid() bool {
	return p > 0
}

// String returns the display form of the position.
func (p Position) String() string {
	return fmt.Sprintf("#%d", int(p))
}

// Frames is an elapsed race time in milliseconds. The name is an artifact of
// the Polytrack API, which reports times under a "frames" key.
type Frames int64

// IsValid reports whether the time is usable for comparisons and averages.
func (f Frames) IsValid() bool {
	return f >= 0
}

// Seconds converts the time to seconds.
func (f Frames) Seconds() float64 {
	return float64(f) / 1000.0
}

// String renders the time the way the game client does, "1m 2.345s".
func (f Frames) String() string {
	return timeutil.FormatRaceTime(int64(f))
}

// Percent is a percentile standing on a track: rank divided by total entry
// count, times 100. Lower is better; the world record holder on a track with
// 1000 entries sits at 0.1.
type Percent float64

// ComputePercent derives the percentile for a rank against the total entry
// count. The percentile is undefined when the track has no entries or the
// rank is unknown; ok is false in that case.
func ComputePercent(rank Position, total int) (Percent, bool) {
	if total <= 0 || !rank.IsValid() {
		return 0, false
	}
	return Percent(float64(rank) / float64(total) * 100), true
}

// VerifiedState is the tri-state verification code the Polytrack service
// attaches to a run.
type VerifiedState int

const (
	// VerifiedStateUnverified - the run has not been checked.
	VerifiedStateUnverified VerifiedState = 0
	// VerifiedStateVerified - the run's legitimacy has been confirmed.
	VerifiedStateVerified VerifiedState = 1
	// VerifiedStateUnknown - the service reported an unrecognized code.
	VerifiedStateUnknown VerifiedState = 2
)

// String returns the display form of the verification state.
func (v VerifiedState) String() string {
	switch v {
	case VerifiedStateUnverified:
		return "unverified"
	case VerifiedStateVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// CarColors is the encoded car color string from the Polytrack API: a
// concatenation of 6-digit hex color codes without separators.
type CarColors string

// Colors splits the encoded string into individual "#rrggbb" codes. Trailing
// fragments shorter than six digits are zero-padded, mirroring how the
// original service renders them.
func (c CarColors) Colors() []string {
	s := string(c)
	if s == "" {
		return nil
	}
	colors := make([]string, 0, (len(s)+5)/6)
	for i := 0; i < len(s); i += 6 {
		end := i + 6
		if end > len(s) {
			end = len(s)
		}
		chunk := s[i:end]
		if len(chunk) < 6 {
			chunk += strings.Repeat("0", 6-len(chunk))
		}
		colors = append(colors, "#"+chunk)
	}
	return colors
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one ranked record for a user on a track. The raw fields mirror the
// Polytrack API payload; Rank and Percent are derived after the fact, since a
// page response only carries the global position of the query subject.
type Entry struct {
	// ID is the recording identifier assigned by the service.
	ID int64 `json:"id"`

	// UserID is the canonical user identifier (a token hash).
	UserID string `json:"userId"`

	// Name is the display name at the time of the run.
	Name string `json:"name"`

	// CarColors is the encoded car color string.
	CarColors CarColors `json:"carColors"`

	// Frames is the elapsed time in milliseconds.
	Frames Frames `json:"frames"`

	// VerifiedState is the verification code for the run.
	VerifiedState VerifiedState `json:"verifiedState"`

	// Position is the 1-based place within the ranking that produced this
	// entry. May differ from Rank depending on which query returned it.
	Position Position `json:"position"`

	// Rank is the resolved global position, 0 until resolved.
	Rank Position `json:"rank,omitempty"`

	// Percent is the percentile standing; only meaningful when HasPercent
	// is true (the track had at least one entry when resolved).
	Percent Percent `json:"percent,omitempty"`

	// HasPercent reports whether Percent is defined.
	HasPercent bool `json:"-"`

	// Recording is the ghost recording payload, attached on demand from the
	// recordings endpoint. Empty when not requested or unavailable.
	Recording string `json:"recording,omitempty"`
}

// WithStanding returns a copy of the entry with the derived rank and, when
// the total entry count allows it, the percentile attached.
func (e Entry) WithStanding(rank Position, total int) Entry {
	e.Rank = rank
	e.Percent, e.HasPercent = ComputePercent(rank, total)
	return e
}

// TrackEntry couples an entry with the track it was recorded on, for
// catalog-wide aggregation and display.
type TrackEntry struct {
	Entry
	TrackID   string `json:"trackId"`
	TrackName string `json:"trackName"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PAGE
// ══════════════════════════════════════════════════════════════════════════════

// Page is the result of one paginated leaderboard query.
type Page struct {
	// Total is the count of all entries matching the filter.
	Total int `json:"total"`

	// Entries is the page-local window, at most PageSize entries.
	Entries []Entry `json:"entries"`

	// UserEntry is the querying user's own standing, independent of the
	// page window. Nil when no user was supplied or the user has no entry.
	UserEntry *Entry `json:"userEntry,omitempty"`

	// PageNumber is the 1-based page this window corresponds to.
	PageNumber int `json:"page"`

	// PageSize is the window size used for the query.
	PageSize int `json:"pageSize"`

	// TotalPages is ceil(Total / PageSize).
	TotalPages int `json:"totalPages"`

	// UserPage is the page containing UserEntry, 0 when UserEntry is nil.
	UserPage int `json:"userPage,omitempty"`
}

// TotalPages computes the number of pages needed to cover total entries.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// PageFor returns the 1-based page number containing the given position.
func PageFor(position Position, pageSize int) int {
	if !position.IsValid() || pageSize <= 0 {
		return 0
	}
	return (int(position) + pageSize - 1) / pageSize
}

// SkipFor returns the entry offset of the first record on the given page.
func SkipFor(pageNumber, pageSize int) int {
	if pageNumber < 1 {
		pageNumber = 1
	}
	return (pageNumber - 1) * pageSize
}
