package models

import "time"

// Tier is a contractor rank gating complexity, daily claim quota, and
// proof-of-work check-in frequency.
type Tier string

const (
	TierNovice Tier = "novice"
	TierPro    Tier = "pro"
	TierElite  Tier = "elite"
)

// TierPolicy is the per-tier resource policy
type TierPolicy struct {
	MaxComplexity   int
	DailyQuota      int
	CheckInInterval time.Duration
}

var tierPolicies = map[Tier]TierPolicy{
	TierNovice: {MaxComplexity: 2, DailyQuota: 2, CheckInInterval: 2 * time.Hour},
	TierPro:    {MaxComplexity: 4, DailyQuota: 4, CheckInInterval: 4 * time.Hour},
	TierElite:  {MaxComplexity: 5, DailyQuota: 6, CheckInInterval: 8 * time.Hour},
}

var tierRanks = map[Tier]int{
	TierNovice: 0,
	TierPro:    1,
	TierElite:  2,
}

// Policy returns the resource policy for the tier. Unknown tiers get the
// novice policy.
func (t Tier) Policy() TierPolicy {
	if p, ok := tierPolicies[t]; ok {
		return p
	}
	return tierPolicies[TierNovice]
}

// AtLeast reports whether t ranks at or above min in the total ordering
// novice < pro < elite.
func (t Tier) AtLeast(min Tier) bool {
	return tierRanks[t] >= tierRanks[min]
}
