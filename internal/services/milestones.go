package services

import "taskforge/backend/pkg/models"

// MilestoneProgress summarizes an execution's checklist. Monitoring
// collaborators use it for progress-vs-deadline signals; Submit uses Ready
// to gate submission.
type MilestoneProgress struct {
	Completed  int      `json:"completed"`
	Total      int      `json:"total"`
	Ratio      float64  `json:"ratio"`
	Incomplete []string `json:"incomplete,omitempty"`
	Ready      bool     `json:"ready"`
}

// Progress computes the completion state of a milestone checklist. An empty
// checklist is ready: work units without milestones gate nothing.
func Progress(milestones []*models.TaskMilestone) MilestoneProgress {
	p := MilestoneProgress{Total: len(milestones), Ratio: 1, Ready: true}
	for _, m := range milestones {
		if m.Completed() {
			p.Completed++
		} else {
			p.Incomplete = append(p.Incomplete, m.Description)
		}
	}
	if p.Total > 0 {
		p.Ratio = float64(p.Completed) / float64(p.Total)
	}
	p.Ready = len(p.Incomplete) == 0
	return p
}
