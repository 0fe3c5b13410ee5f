// Package stats computes aggregate statistics over a user's settled track
// results: averages, best and worst entries, and medal groupings, split by
// catalog. Everything here is pure; it is safe to recompute on every slot
// update while a sweep is still running.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/domain/track"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION
// ══════════════════════════════════════════════════════════════════════════════

// CollectFound filters a result map down to found entries, in catalog order.
// Catalog order is what makes tie-breaks deterministic: the first entry
// encountered wins every min/max tie.
func CollectFound(results map[string]leaderboard.PerTrackResult, catalog *track.Catalog) (official, community []leaderboard.TrackEntry) {
	collect := func(descs []track.Descriptor) []leaderboard.TrackEntry {
		var out []leaderboard.TrackEntry
		for _, d := range descs {
			r, ok := results[d.ID]
			if !ok || r.Status != leaderboard.StatusFound || r.Entry == nil {
				continue
			}
			out = append(out, leaderboard.TrackEntry{
				Entry:     *r.Entry,
				TrackID:   d.ID,
				TrackName: d.Name,
			})
		}
		return out
	}
	return collect(catalog.Official), collect(catalog.Community)
}

// ══════════════════════════════════════════════════════════════════════════════
// AVERAGES
// ══════════════════════════════════════════════════════════════════════════════

// Averages holds formatted and raw means over a set of entries. Formatted
// fields use fixed precision: seconds to 3 places, rank to 2, percent to 4.
type Averages struct {
	AvgTime    string `json:"avgTime"`
	AvgRank    string `json:"avgRank"`
	AvgPercent string `json:"avgPercent"`

	// Raw values back the formatted strings; consumers that sort or compare
	// should use these.
	RawAvgSeconds float64 `json:"rawAvgSeconds"`
	RawAvgRank    float64 `json:"rawAvgRank,omitempty"`
	RawAvgPercent float64 `json:"rawAvgPercent,omitempty"`

	// HasRank and HasPercent report whether any entry qualified for the
	// respective mean.
	HasRank    bool `json:"hasRank"`
	HasPercent bool `json:"hasPercent"`

	// Count is the number of entries aggregated.
	Count int `json:"count"`
}

// ComputeAverages returns the means over the entries, or nil when there are
// none. Rank and percent means skip entries without a defined value; time
// always averages over every entry.
func ComputeAverages(entries []leaderboard.TrackEntry) *Averages {
	if len(entries) == 0 {
		return nil
	}

	var (
		frames   int64
		ranks    int64
		nRanks   int
		percents float64
		nPercent int
	)
	for _, e := range entries {
		frames += int64(e.Frames)
		if e.Rank.IsValid() {
			ranks += int64(e.Rank)
			nRanks++
		}
		if e.HasPercent {
			percents += float64(e.Percent)
			nPercent++
		}
	}

	avg := &Averages{
		RawAvgSeconds: float64(frames) / float64(len(entries)) / 1000,
		Count:         len(entries),
	}
	avg.AvgTime = fmt.Sprintf("%.3fs", avg.RawAvgSeconds)

	avg.AvgRank = "N/A"
	if nRanks > 0 {
		avg.RawAvgRank = float64(ranks) / float64(nRanks)
		avg.HasRank = true
		avg.AvgRank = fmt.Sprintf("%.2f", avg.RawAvgRank)
	}

	avg.AvgPercent = "N/A"
	if nPercent > 0 {
		avg.RawAvgPercent = percents / float64(nPercent)
		avg.HasPercent = true
		avg.AvgPercent = fmt.Sprintf("%.4f%%", avg.RawAvgPercent)
	}
	return avg
}

// ══════════════════════════════════════════════════════════════════════════════
// BEST / WORST
// ══════════════════════════════════════════════════════════════════════════════

// BestWorst points at extreme entries by each axis. Nil when no entry
// qualifies for the axis. On ties the first entry in catalog order wins.
type BestWorst struct {
	BestTime     *leaderboard.TrackEntry `json:"bestTime,omitempty"`
	WorstTime    *leaderboard.TrackEntry `json:"worstTime,omitempty"`
	BestRank     *leaderboard.TrackEntry `json:"bestRank,omitempty"`
	WorstRank    *leaderboard.TrackEntry `json:"worstRank,omitempty"`
	BestPercent  *leaderboard.TrackEntry `json:"bestPercent,omitempty"`
	WorstPercent *leaderboard.TrackEntry `json:"worstPercent,omitempty"`
}

// FindBestWorst scans the entries for extremes. Lower is better on every
// axis. Strict comparisons keep ties stable on the first encounter.
func FindBestWorst(entries []leaderboard.TrackEntry) BestWorst {
	var bw BestWorst
	for i := range entries {
		e := &entries[i]

		if e.Frames.IsValid() {
			if bw.BestTime == nil || e.Frames < bw.BestTime.Frames {
				bw.BestTime = e
			}
			if bw.WorstTime == nil || e.Frames > bw.WorstTime.Frames {
				bw.WorstTime = e
			}
		}
		if e.Rank.IsValid() {
			if bw.BestRank == nil || e.Rank < bw.BestRank.Rank {
				bw.BestRank = e
			}
			if bw.WorstRank == nil || e.Rank > bw.WorstRank.Rank {
				bw.WorstRank = e
			}
		}
		if e.HasPercent {
			if bw.BestPercent == nil || e.Percent < bw.BestPercent.Percent {
				bw.BestPercent = e
			}
			if bw.WorstPercent == nil || e.Percent > bw.WorstPercent.Percent {
				bw.WorstPercent = e
			}
		}
	}
	return bw
}

// ══════════════════════════════════════════════════════════════════════════════
// MEDALS
// ══════════════════════════════════════════════════════════════════════════════

// MedalGroup is one medal tier and the entries that earned it.
type MedalGroup struct {
	Medal   leaderboard.Medal        `json:"medal"`
	Entries []leaderboard.TrackEntry `json:"entries"`
}

// medalOrder fixes the display order of medal groups.
var medalOrder = []leaderboard.Medal{
	leaderboard.MedalDiamond,
	leaderboard.MedalEmerald,
	leaderboard.MedalGold,
	leaderboard.MedalSilver,
	leaderboard.MedalBronze,
	leaderboard.MedalWR,
	leaderboard.MedalPodium,
}

// GroupMedals buckets entries by earned medal. An entry can appear under
// both a percent tier and a rank tier, but never twice under the same label.
// Tiers with no entries are omitted.
func GroupMedals(entries []leaderboard.TrackEntry) []MedalGroup {
	byLabel := make(map[string][]leaderboard.TrackEntry)

	add := func(label string, e leaderboard.TrackEntry) {
		for _, existing := range byLabel[label] {
			if existing.ID == e.ID && existing.TrackID == e.TrackID {
				return
			}
		}
		byLabel[label] = append(byLabel[label], e)
	}

	for _, e := range entries {
		if e.HasPercent {
			if m, ok := leaderboard.ClassifyByPercent(e.Percent); ok {
				add(m.Label, e)
			}
		}
		if m, ok := leaderboard.ClassifyByPosition(e.Rank); ok {
			add(m.Label, e)
		}
	}

	groups := make([]MedalGroup, 0, len(byLabel))
	for _, m := range medalOrder {
		if bucket, ok := byLabel[m.Label]; ok {
			groups = append(groups, MedalGroup{Medal: m, Entries: bucket})
		}
	}
	return groups
}

// ══════════════════════════════════════════════════════════════════════════════
// SORTING
// ══════════════════════════════════════════════════════════════════════════════

// SortKey selects an ordering for track-entry listings.
type SortKey string

const (
	// SortTrackOrder keeps catalog order.
	SortTrackOrder SortKey = "trackOrder"
	// SortLowestPercent orders by percentile, best first.
	SortLowestPercent SortKey = "lowestPercent"
	// SortHighestRank orders by rank, best first.
	SortHighestRank SortKey = "highestRank"
	// SortFastestTime orders by elapsed time, fastest first.
	SortFastestTime SortKey = "fastestTime"
	// SortAlphabetical orders by track name.
	SortAlphabetical SortKey = "alphabetical"
)

// ParseSortKey validates a sort-key string, defaulting to catalog order.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortLowestPercent, SortHighestRank, SortFastestTime, SortAlphabetical:
		return SortKey(s)
	default:
		return SortTrackOrder
	}
}

// SortEntries returns a sorted copy. The input is assumed to be in catalog
// order, which SortTrackOrder preserves. reverse flips whichever order the
// key produced.
func SortEntries(entries []leaderboard.TrackEntry, key SortKey, reverse bool) []leaderboard.TrackEntry {
	out := make([]leaderboard.TrackEntry, len(entries))
	copy(out, entries)

	switch key {
	case SortLowestPercent:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Percent < out[j].Percent })
	case SortHighestRank:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	case SortFastestTime:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Frames < out[j].Frames })
	case SortAlphabetical:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].TrackName) < strings.ToLower(out[j].TrackName)
		})
	}

	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT
// ══════════════════════════════════════════════════════════════════════════════

// Aggregate bundles the statistics for one catalog slice.
type Aggregate struct {
	Averages  *Averages                `json:"averages,omitempty"`
	BestWorst BestWorst                `json:"bestWorst"`
	Entries   []leaderboard.TrackEntry `json:"entries"`
}

// Report is the full statistics view over a result map: per-catalog
// aggregates plus the medal groups over everything.
type Report struct {
	Official  Aggregate    `json:"official"`
	Community Aggregate    `json:"community"`
	Overall   Aggregate    `json:"overall"`
	Medals    []MedalGroup `json:"medals"`
}

// BuildReport aggregates a result map. Only found entries contribute; the
// output is fully determined by the map contents, independent of the order
// results arrived in.
func BuildReport(results map[string]leaderboard.PerTrackResult, catalog *track.Catalog) Report {
	official, community := CollectFound(results, catalog)
	overall := make([]leaderboard.TrackEntry, 0, len(official)+len(community))
	overall = append(overall, official...)
	overall = append(overall, community...)

	return Report{
		Official:  aggregate(official),
		Community: aggregate(community),
		Overall:   aggregate(overall),
		Medals:    GroupMedals(overall),
	}
}

func aggregate(entries []leaderboard.TrackEntry) Aggregate {
	return Aggregate{
		Averages:  ComputeAverages(entries),
		BestWorst: FindBestWorst(entries),
		Entries:   entries,
	}
}
