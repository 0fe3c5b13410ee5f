package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mythses/polystat/internal/domain/leaderboard"
	"github.com/Mythses/polystat/internal/domain/track"
)

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func foundOn(trackID string, id int64, frames int64, rank int, total int) leaderboard.PerTrackResult {
	e := leaderboard.Entry{
		ID:     id,
		UserID: "hash",
		Name:   "racer",
		Frames: leaderboard.Frames(frames),
	}
	e = e.WithStanding(leaderboard.Position(rank), total)
	return leaderboard.Found(e)
}

func testEntry(trackName string, id int64, frames int64, rank int, total int) leaderboard.TrackEntry {
	e := leaderboard.Entry{ID: id, Frames: leaderboard.Frames(frames)}
	e = e.WithStanding(leaderboard.Position(rank), total)
	return leaderboard.TrackEntry{Entry: e, TrackID: trackName + "-id", TrackName: trackName}
}

// ══════════════════════════════════════════════════════════════════════════════
// AVERAGES
// ══════════════════════════════════════════════════════════════════════════════

func TestComputeAverages_Empty(t *testing.T) {
	assert.Nil(t, ComputeAverages(nil))
}

func TestComputeAverages_Formatting(t *testing.T) {
	entries := []leaderboard.TrackEntry{
		testEntry("a", 1, 61250, 1, 1000),  // 61.250s, percent 0.1
		testEntry("b", 2, 30000, 50, 1000), // 30.000s, percent 5.0
	}

	avg := ComputeAverages(entries)
	require.NotNil(t, avg)

	assert.Equal(t, 2, avg.Count)
	assert.Equal(t, "45.625s", avg.AvgTime)
	assert.Equal(t, "25.50", avg.AvgRank)
	assert.Equal(t, "2.5500%", avg.AvgPercent)
	assert.True(t, avg.HasRank)
	assert.True(t, avg.HasPercent)
	assert.InDelta(t, 45.625, avg.RawAvgSeconds, 1e-9)
}

func TestComputeAverages_NoRankOrPercent(t *testing.T) {
	e := leaderboard.TrackEntry{
		Entry:     leaderboard.Entry{ID: 1, Frames: 12345},
		TrackName: "a",
	}

	avg := ComputeAverages([]leaderboard.TrackEntry{e})
	require.NotNil(t, avg)

	assert.Equal(t, "12.345s", avg.AvgTime)
	assert.Equal(t, "N/A", avg.AvgRank)
	assert.Equal(t, "N/A", avg.AvgPercent)
	assert.False(t, avg.HasRank)
	assert.False(t, avg.HasPercent)
}

// ══════════════════════════════════════════════════════════════════════════════
// BEST / WORST
// ══════════════════════════════════════════════════════════════════════════════

func TestFindBestWorst(t *testing.T) {
	entries := []leaderboard.TrackEntry{
		testEntry("mid", 1, 50000, 30, 100),
		testEntry("fast", 2, 20000, 2, 100),
		testEntry("slow", 3, 90000, 80, 100),
	}

	bw := FindBestWorst(entries)
	require.NotNil(t, bw.BestTime)

	assert.Equal(t, "fast", bw.BestTime.TrackName)
	assert.Equal(t, "slow", bw.WorstTime.TrackName)
	assert.Equal(t, "fast", bw.BestRank.TrackName)
	assert.Equal(t, "slow", bw.WorstRank.TrackName)
	assert.Equal(t, "fast", bw.BestPercent.TrackName)
	assert.Equal(t, "slow", bw.WorstPercent.TrackName)
}

func TestFindBestWorst_FirstEntryWinsTies(t *testing.T) {
	entries := []leaderboard.TrackEntry{
		testEntry("first", 1, 40000, 10, 100),
		testEntry("second", 2, 40000, 10, 100),
	}

	bw := FindBestWorst(entries)

	assert.Equal(t, "first", bw.BestTime.TrackName)
	assert.Equal(t, "first", bw.WorstTime.TrackName)
	assert.Equal(t, "first", bw.BestRank.TrackName)
}

func TestFindBestWorst_Empty(t *testing.T) {
	bw := FindBestWorst(nil)
	assert.Nil(t, bw.BestTime)
	assert.Nil(t, bw.BestRank)
	assert.Nil(t, bw.BestPercent)
}

// ══════════════════════════════════════════════════════════════════════════════
// MEDALS
// ══════════════════════════════════════════════════════════════════════════════

func TestGroupMedals_PercentTiers(t *testing.T) {
	entries := []leaderboard.TrackEntry{
		testEntry("diamond", 1, 1000, 1, 100000), // 0.001%
		testEntry("gold", 2, 1000, 40, 1000),     // 4%
		testEntry("none", 3, 1000, 300, 1000),    // 30%, no medal
	}

	groups := GroupMedals(entries)

	labels := make([]string, 0, len(groups))
	for _, g := range groups {
		labels = append(labels, g.Medal.Label)
	}
	// "diamond" also sits at rank 1, so it earns WR alongside its tier.
	assert.Equal(t, []string{
		leaderboard.MedalDiamond.Label,
		leaderboard.MedalGold.Label,
		leaderboard.MedalWR.Label,
	}, labels)
}

func TestGroupMedals_WorldRecordEarnsTierAndRankMedal(t *testing.T) {
	// Rank 1 of 1000 is percentile 0.1: an emerald and a world record.
	entries := []leaderboard.TrackEntry{testEntry("wr", 7, 1000, 1, 1000)}

	groups := GroupMedals(entries)
	require.Len(t, groups, 2)

	assert.Equal(t, leaderboard.MedalEmerald.Label, groups[0].Medal.Label)
	assert.Len(t, groups[0].Entries, 1)
	assert.Equal(t, leaderboard.MedalWR.Label, groups[1].Medal.Label)
	assert.Len(t, groups[1].Entries, 1)
}

func TestGroupMedals_NoDuplicateUnderOneLabel(t *testing.T) {
	e := testEntry("dup", 9, 1000, 3, 1000) // podium and emerald
	groups := GroupMedals([]leaderboard.TrackEntry{e, e})

	for _, g := range groups {
		assert.Len(t, g.Entries, 1, "label %s", g.Medal.Label)
	}
}

func TestGroupMedals_Idempotent(t *testing.T) {
	entries := []leaderboard.TrackEntry{
		testEntry("a", 1, 1000, 1, 1000),
		testEntry("b", 2, 1000, 4, 1000),
		testEntry("c", 3, 1000, 100, 1000),
	}

	first := GroupMedals(entries)
	second := GroupMedals(entries)
	assert.Equal(t, first, second)
}

// ══════════════════════════════════════════════════════════════════════════════
// SORTING
// ══════════════════════════════════════════════════════════════════════════════

func TestSortEntries(t *testing.T) {
	entries := []leaderboard.TrackEntry{
		testEntry("Zeta", 1, 30000, 5, 100),
		testEntry("alpha", 2, 10000, 50, 100),
		testEntry("Mid", 3, 20000, 1, 100),
	}

	byTime := SortEntries(entries, SortFastestTime, false)
	assert.Equal(t, "alpha", byTime[0].TrackName)
	assert.Equal(t, "Zeta", byTime[2].TrackName)

	byRank := SortEntries(entries, SortHighestRank, false)
	assert.Equal(t, "Mid", byRank[0].TrackName)

	byName := SortEntries(entries, SortAlphabetical, false)
	assert.Equal(t, "alpha", byName[0].TrackName)
	assert.Equal(t, "Zeta", byName[2].TrackName)

	reversed := SortEntries(entries, SortFastestTime, true)
	assert.Equal(t, "Zeta", reversed[0].TrackName)

	// Catalog order leaves the input untouched.
	kept := SortEntries(entries, SortTrackOrder, false)
	assert.Equal(t, "Zeta", kept[0].TrackName)
	assert.Equal(t, "Zeta", entries[0].TrackName, "input must not be mutated")
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortFastestTime, ParseSortKey("fastestTime"))
	assert.Equal(t, SortTrackOrder, ParseSortKey("bogus"))
	assert.Equal(t, SortTrackOrder, ParseSortKey(""))
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT
// ══════════════════════════════════════════════════════════════════════════════

func TestBuildReport_SplitsByCatalog(t *testing.T) {
	catalog := track.MustDefault()
	official := catalog.Official[0]
	community := catalog.Community[0]

	results := map[string]leaderboard.PerTrackResult{
		official.ID:           foundOn(official.ID, 1, 30000, 5, 100),
		community.ID:          foundOn(community.ID, 2, 45000, 10, 100),
		catalog.Official[1].ID: leaderboard.NotFound(),
		catalog.Official[2].ID: leaderboard.Failed("bad gateway", 4),
	}

	report := BuildReport(results, catalog)

	require.Len(t, report.Official.Entries, 1)
	require.Len(t, report.Community.Entries, 1)
	require.Len(t, report.Overall.Entries, 2)

	assert.Equal(t, official.Name, report.Official.Entries[0].TrackName)
	assert.Equal(t, community.Name, report.Community.Entries[0].TrackName)
	assert.Equal(t, "37.500s", report.Overall.Averages.AvgTime)
}

func TestBuildReport_OrderIndependent(t *testing.T) {
	catalog := track.MustDefault()

	// Build the same logical result set twice; map iteration order varies
	// between the two, catalog order must make the reports identical.
	build := func() map[string]leaderboard.PerTrackResult {
		results := make(map[string]leaderboard.PerTrackResult)
		for i, d := range catalog.All() {
			results[d.ID] = foundOn(d.ID, int64(i+1), int64(10000+i*100), i+1, 500)
		}
		return results
	}

	first := BuildReport(build(), catalog)
	second := BuildReport(build(), catalog)
	assert.Equal(t, first, second)
}

func TestBuildReport_EmptyResults(t *testing.T) {
	catalog := track.MustDefault()
	report := BuildReport(map[string]leaderboard.PerTrackResult{}, catalog)

	assert.Nil(t, report.Overall.Averages)
	assert.Nil(t, report.Overall.BestWorst.BestTime)
	assert.Empty(t, report.Medals)
}
