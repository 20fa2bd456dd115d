package intelligence

// Reinforcement maps cumulative access counts to memory levels and weights.
// Frequently retrieved records climb levels and gain weight, which amplifies
// their final score in later queries. The mapping is a pure function of the
// access count, so replays and concurrent updates converge to the same state.
//
// Level thresholds:
//
//	0-2 accesses  -> level 0
//	3-4 accesses  -> level 1
//	5-9 accesses  -> level 2
//	10+ accesses  -> level 3
const (
	// WeightFloor is the lower clamp for memory weight.
	WeightFloor = 0.3

	// WeightCeiling is the upper clamp for memory weight.
	WeightCeiling = 2.0

	// DecayFloorDefault is the minimum decay factor for rarely accessed records.
	DecayFloorDefault = 0.3

	// DecayFloorReinforced is the minimum decay factor once a record has been
	// accessed at least FrequentAccessCount times.
	DecayFloorReinforced = 0.7

	// FrequentAccessCount is the access count at which a record earns the
	// gentler decay floor.
	FrequentAccessCount = 5
)

// LevelForAccessCount returns the reinforcement level for a cumulative access
// count. Levels only ever increase because access counts only ever increase.
func LevelForAccessCount(count int) int {
	switch {
	case count >= 10:
		return 3
	case count >= 5:
		return 2
	case count >= 3:
		return 1
	default:
		return 0
	}
}

// WeightForAccessCount returns the memory weight for a cumulative access
// count. Each level has its own slope and cap, so a record's weight grows
// quickly at first and saturates at WeightCeiling.
func WeightForAccessCount(count int) float64 {
	n := float64(count)
	switch {
	case count >= 10:
		return minFloat(2.0, 1.0+n*0.15)
	case count >= 5:
		return minFloat(1.5, 1.0+n*0.12)
	case count >= 3:
		return minFloat(1.3, 1.0+n*0.10)
	default:
		return 1.0 + n*0.05
	}
}

// DecayFactor returns the multiplicative decay factor for a record of the
// given age. Records within thresholdDays do not decay (factor 1.0). Beyond
// the threshold the factor drops by 0.2 per additional year, floored at 0.3,
// or at 0.7 for records accessed at least FrequentAccessCount times.
func DecayFactor(ageDays int, accessCount int, thresholdDays int) float64 {
	if ageDays <= thresholdDays {
		return 1.0
	}
	yearsBeyond := float64(ageDays-thresholdDays) / 365.0
	factor := 1.0 - 0.2*yearsBeyond
	floor := DecayFloorDefault
	if accessCount >= FrequentAccessCount {
		floor = DecayFloorReinforced
	}
	if factor < floor {
		factor = floor
	}
	return factor
}

// RelevanceScore combines a record's weight and access count into the
// composite relevance used for decay reporting.
func RelevanceScore(weight float64, accessCount int) float64 {
	return weight * (1.0 + float64(accessCount)*0.1)
}

// ClampWeight bounds a weight to [WeightFloor, WeightCeiling].
func ClampWeight(w float64) float64 {
	if w < WeightFloor {
		return WeightFloor
	}
	if w > WeightCeiling {
		return WeightCeiling
	}
	return w
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
