package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mythses/polystat/internal/application/identity"
	"github.com/Mythses/polystat/internal/application/query"
	"github.com/Mythses/polystat/internal/application/session"
	"github.com/Mythses/polystat/internal/application/stats"
	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.Uptime().String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if err := s.deps.HealthChecker.HealthCheck(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKS & LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.ListTracks.Handle(r.Context()))
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := query.FetchPageQuery{
		TrackID:           queryParam(r, "trackId", ""),
		Page:              queryParamInt(r, "page", 1),
		OnlyVerified:      queryParamBool(r, "onlyVerified"),
		UserID:            queryParam(r, "userId", ""),
		IncludeRecordings: queryParamBool(r, "includeRecordings"),
	}

	result, err := s.deps.FetchPage.Handle(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

type resolveRequest struct {
	// Input is the raw search string: a user id, a user token, or a rank
	// number.
	Input string `json:"input"`

	// Kind selects how Input is interpreted: user_id, user_token or
	// rank_number.
	Kind string `json:"kind"`

	// TrackID scopes rank-number input to one track.
	TrackID string `json:"trackId,omitempty"`
}

func (s *Server) handleResolveUser(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	kind, err := identity.ParseKind(req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ident, err := s.deps.Resolver.Resolve(r.Context(), req.Input, kind, req.TrackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	onlyVerified := queryParamBool(r, "onlyVerified")

	ident, err := s.deps.Resolver.LookupProfile(r.Context(), userID, onlyVerified)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

type startSearchRequest struct {
	resolveRequest

	// OnlyVerified restricts per-track standings to verified boards.
	OnlyVerified bool `json:"onlyVerified"`

	// Immediate skips the debounce window before the sweep starts.
	Immediate bool `json:"immediate"`
}

type startSearchResponse struct {
	SessionID string            `json:"sessionId"`
	Identity  identity.Identity `json:"identity"`
	Tracks    int               `json:"tracks"`
}

// handleStartSearch resolves the search input to an identity and starts a
// catalog sweep for it. A new search supersedes the previous one.
func (s *Server) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	var req startSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	kind, err := identity.ParseKind(req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ident, err := s.deps.Resolver.Resolve(r.Context(), req.Input, kind, req.TrackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sess, err := s.deps.Sessions.Start(ident, req.OnlyVerified, req.Immediate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, startSearchResponse{
		SessionID: sess.ID.String(),
		Identity:  ident,
		Tracks:    len(s.deps.Catalog.All()),
	})
}

type sessionResponse struct {
	session.Snapshot
	Stats stats.Report `json:"stats"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := shared.NewSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id")
		return
	}

	snap, err := s.deps.Sessions.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeSessionResponse(w, r, snap)
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Sessions.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no active session")
		return
	}
	s.writeSessionResponse(w, r, snap)
}

// writeSessionResponse serves a snapshot with statistics recomputed over
// whatever has settled so far, sorted as requested.
func (s *Server) writeSessionResponse(w http.ResponseWriter, r *http.Request, snap session.Snapshot) {
	results := make(map[string]leaderboard.PerTrackResult, len(snap.Slots))
	for _, slot := range snap.Slots {
		results[slot.TrackID] = slot.Result
	}

	report := stats.BuildReport(results, s.deps.Catalog)

	sortKey := stats.ParseSortKey(queryParam(r, "sort", ""))
	reverse := queryParamBool(r, "reverse")
	if sortKey != stats.SortTrackOrder || reverse {
		report.Official.Entries = stats.SortEntries(report.Official.Entries, sortKey, reverse)
		report.Community.Entries = stats.SortEntries(report.Community.Entries, sortKey, reverse)
		report.Overall.Entries = stats.SortEntries(report.Overall.Entries, sortKey, reverse)
	}

	writeJSON(w, http.StatusOK, sessionResponse{Snapshot: snap, Stats: report})
}

func (s *Server) handleRetryTrack(w http.ResponseWriter, r *http.Request) {
	id, err := shared.NewSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id")
		return
	}

	if err := s.deps.Sessions.RetryTrack(id, chi.URLParam(r, "trackID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}
