package services

import (
	"time"

	"taskforge/backend/pkg/models"
)

// CheckEligibility decides whether a student may claim a work unit. Pure:
// no reads, no writes; callers load the inputs and surface the first failing
// reason. claimedToday is the student's count of executions created since
// local midnight.
func CheckEligibility(student *models.Student, wu *models.WorkUnit, escrow *models.Escrow, claimedToday int) error {
	if wu.Status != models.WorkUnitStatusActive {
		return Errf(CodeNotActive, "work unit is %s", wu.Status)
	}
	if escrow == nil || escrow.Status != models.EscrowStatusFunded {
		return Errf(CodeEscrowNotFunded, "escrow is not funded")
	}
	policy := student.Tier.Policy()
	if wu.ComplexityScore > policy.MaxComplexity {
		return Errf(CodeIneligibleComplexity, "complexity %d exceeds tier %s ceiling %d",
			wu.ComplexityScore, student.Tier, policy.MaxComplexity)
	}
	if !student.Tier.AtLeast(wu.MinTier) {
		return Errf(CodeIneligibleTier, "tier %s is below required %s", student.Tier, wu.MinTier)
	}
	if claimedToday >= policy.DailyQuota {
		return Errf(CodeDailyLimit, "daily claim quota of %d reached", policy.DailyQuota)
	}
	return nil
}

// StartOfToday returns local midnight. The daily quota counts creation-day
// boundaries in the server's local time zone, not a rolling 24h window.
func StartOfToday(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
