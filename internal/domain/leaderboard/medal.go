package leaderboard

// ══════════════════════════════════════════════════════════════════════════════
// MEDAL TIERS
// ══════════════════════════════════════════════════════════════════════════════

// MedalKind distinguishes the two classification axes: percentile tiers
// (mineral medals) and absolute position tiers (rank medals).
type MedalKind string

const (
	// MedalKindMineral - classified by percentile standing.
	MedalKindMineral MedalKind = "mineral"
	// MedalKindRank - classified by absolute position.
	MedalKindRank MedalKind = "rank"
)

// Medal is a cosmetic classification label derived from a standing. A single
// entry may hold one mineral medal and one rank medal at the same time.
type Medal struct {
	Icon  string    `json:"icon"`
	Label string    `json:"label"`
	Kind  MedalKind `json:"kind"`
}

// Mineral medals, ordered from best to worst. Thresholds are inclusive on the
// upper end and evaluated in ascending order; first match wins.
var (
	MedalDiamond = Medal{Icon: "♦", Label: "Diamond", Kind: MedalKindMineral}
	MedalEmerald = Medal{Icon: "♦", Label: "Emerald", Kind: MedalKindMineral}
	MedalGold    = Medal{Icon: "♦", Label: "Gold", Kind: MedalKindMineral}
	MedalSilver  = Medal{Icon: "♦", Label: "Silver", Kind: MedalKindMineral}
	MedalBronze  = Medal{Icon: "♦", Label: "Bronze", Kind: MedalKindMineral}
)

// Rank medals.
var (
	MedalWR     = Medal{Icon: "✦", Label: "WR", Kind: MedalKindRank}
	MedalPodium = Medal{Icon: "✦", Label: "Podium", Kind: MedalKindRank}
)

// percentTier pairs an inclusive upper bound with its medal.
type percentTier struct {
	upTo  Percent
	medal Medal
}

var percentTiers = []percentTier{
	{0.005, MedalDiamond},
	{0.5, MedalEmerald},
	{5, MedalGold},
	{15, MedalSilver},
	{25, MedalBronze},
}

// ClassifyByPercent maps a percentile standing to its mineral medal.
// Standings above the Bronze threshold earn nothing; ok is false then, and
// for percentiles that are not finite non-negative numbers.
func ClassifyByPercent(p Percent) (Medal, bool) {
	if p != p || p < 0 { // NaN or negative
		return Medal{}, false
	}
	for _, tier := range percentTiers {
		if p <= tier.upTo {
			return tier.medal, true
		}
	}
	return Medal{}, false
}

// ClassifyByPosition maps an absolute position to its rank medal: first place
// is the world record, places two through five share the podium.
func ClassifyByPosition(pos Position) (Medal, bool) {
	switch {
	case pos == 1:
		return MedalWR, true
	case pos >= 2 && pos <= 5:
		return MedalPodium, true
	default:
		return Medal{}, false
	}
}

// MedalByLabel resolves a medal by its display label.
func MedalByLabel(label string) (Medal, bool) {
	for _, m := range []Medal{MedalDiamond, MedalEmerald, MedalGold, MedalSilver, MedalBronze, MedalWR, MedalPodium} {
		if m.Label == label {
			return m, true
		}
	}
	return Medal{}, false
}
