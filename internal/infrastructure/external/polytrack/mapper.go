package polytrack

import (
	"github.com/Mythses/polystat/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - Anti-corruption layer between API DTOs and domain model
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts Polytrack API DTOs into domain types. API quirks stop
// here; the domain never sees raw payload shapes.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// EntryFromDTO converts a raw leaderboard record.
func (m *Mapper) EntryFromDTO(dto EntryDTO) leaderboard.Entry {
	return leaderboard.Entry{
		ID:            dto.ID,
		UserID:        dto.UserID,
		Name:          dto.Name,
		CarColors:     leaderboard.CarColors(dto.CarColors),
		Frames:        leaderboard.Frames(dto.Frames),
		VerifiedState: verifiedStateFromCode(dto.VerifiedState),
		Position:      leaderboard.Position(dto.Position),
	}
}

// StandingFromDTO converts the subject's standing out of a probe response,
// deriving rank and percentile from position and total. ok is false when the
// response carries no user entry.
func (m *Mapper) StandingFromDTO(dto *PageDTO) (leaderboard.Entry, bool) {
	if dto == nil || dto.UserEntry == nil {
		return leaderboard.Entry{}, false
	}
	entry := m.EntryFromDTO(*dto.UserEntry)
	return entry.WithStanding(leaderboard.Position(dto.UserEntry.Position), dto.Total), true
}

// PageFromDTO converts a leaderboard window into a domain page. pageNumber
// and pageSize describe the request that produced the window.
func (m *Mapper) PageFromDTO(dto *PageDTO, pageNumber, pageSize int) leaderboard.Page {
	page := leaderboard.Page{
		Total:      dto.Total,
		Entries:    make([]leaderboard.Entry, 0, len(dto.Entries)),
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalPages: leaderboard.TotalPages(dto.Total, pageSize),
	}

	for _, e := range dto.Entries {
		page.Entries = append(page.Entries, m.EntryFromDTO(e))
	}

	if dto.UserEntry != nil {
		standing, _ := m.StandingFromDTO(dto)
		page.UserEntry = &standing
		page.UserPage = leaderboard.PageFor(standing.Position, pageSize)
	}

	return page
}

// RecordingFromDTO attaches a ghost payload to an entry when available.
func (m *Mapper) RecordingFromDTO(entry leaderboard.Entry, dto *RecordingDTO) leaderboard.Entry {
	if dto != nil {
		entry.Recording = dto.Recording
	}
	return entry
}

// verifiedStateFromCode maps the service's integer code, folding anything
// unrecognized into the explicit unknown state.
func verifiedStateFromCode(code int) leaderboard.VerifiedState {
	switch code {
	case 0:
		return leaderboard.VerifiedStateUnverified
	case 1:
		return leaderboard.VerifiedStateVerified
	default:
		return leaderboard.VerifiedStateUnknown
	}
}
