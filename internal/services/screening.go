package services

import "taskforge/backend/pkg/models"

// CanStartWork is the screening gate: an execution may reach active work
// only if the work unit has no screening requirement, or the execution
// already carries a linked completed session. Linking happens lazily at
// clock-in because the interview may complete after the claim.
func CanStartWork(wu *models.WorkUnit, exec *models.Execution) bool {
	if !wu.RequiresScreening() {
		return true
	}
	return exec.ScreeningSessionID != nil && *exec.ScreeningSessionID != ""
}
