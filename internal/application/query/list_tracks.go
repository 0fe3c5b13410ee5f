package query

import (
	"context"

	"github.com/Mythses/polystat/internal/domain/track"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST TRACKS
// ══════════════════════════════════════════════════════════════════════════════

// TrackView is one catalog entry as the API exposes it.
type TrackView struct {
	Name string     `json:"name"`
	ID   string     `json:"id"`
	Kind track.Kind `json:"kind"`
}

// ListTracksResult groups the catalog by kind, preserving catalog order.
type ListTracksResult struct {
	Official  []TrackView `json:"official"`
	Community []TrackView `json:"community"`
}

// ListTracksHandler serves the track catalog.
type ListTracksHandler struct {
	catalog *track.Catalog
}

// NewListTracksHandler creates the handler.
func NewListTracksHandler(catalog *track.Catalog) *ListTracksHandler {
	return &ListTracksHandler{catalog: catalog}
}

// Handle returns the catalog. The context is accepted for interface
// symmetry with the other handlers.
func (h *ListTracksHandler) Handle(_ context.Context) *ListTracksResult {
	res := &ListTracksResult{
		Official:  make([]TrackView, 0, len(h.catalog.Official)),
		Community: make([]TrackView, 0, len(h.catalog.Community)),
	}
	for _, d := range h.catalog.Official {
		res.Official = append(res.Official, TrackView{Name: d.Name, ID: d.ID, Kind: track.KindOfficial})
	}
	for _, d := range h.catalog.Community {
		res.Community = append(res.Community, TrackView{Name: d.Name, ID: d.ID, Kind: track.KindCommunity})
	}
	return res
}
