package services

import "taskforge/backend/pkg/models"

// StaticFormula is the default FormulaProvider wiring. The platform team
// owns the real formulas; this keeps the binary runnable without them.
type StaticFormula struct{}

// CalculateExperience awards experience for an approved execution.
func (StaticFormula) CalculateExperience(complexity, revisionCount int, wasLate bool, qualityScore int) int {
	exp := complexity * 20
	exp -= revisionCount * 5
	if wasLate {
		exp -= 10
	}
	if qualityScore > 70 {
		exp += (qualityScore - 70) / 2
	}
	if exp < 5 {
		exp = 5
	}
	return exp
}

// CheckTierUpgrade returns the highest tier the stats qualify for, or nil
// when the thresholds award no upgrade.
func (StaticFormula) CheckTierUpgrade(stats models.StudentStats) *models.Tier {
	if stats.TasksCompleted >= 50 && stats.AvgQuality >= 85 && stats.OnTimeRate >= 0.9 {
		t := models.TierElite
		return &t
	}
	if stats.TasksCompleted >= 10 && stats.AvgQuality >= 70 {
		t := models.TierPro
		return &t
	}
	return nil
}
