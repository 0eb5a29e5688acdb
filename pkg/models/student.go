package models

import "time"

// Student is a contractor. Cumulative stats are updated only by approval or
// failure transitions, never directly by a client.
type Student struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Tier           Tier       `json:"tier" db:"tier"`
	TasksCompleted int        `json:"tasks_completed" db:"tasks_completed"`
	AvgQuality     float64    `json:"avg_quality" db:"avg_quality"`
	OnTimeRate     float64    `json:"on_time_rate" db:"on_time_rate"`
	TotalExp       int        `json:"total_exp" db:"total_exp"`
	FailureCount   int        `json:"failure_count" db:"failure_count"`
	LastFailureAt  *time.Time `json:"last_failure_at,omitempty" db:"last_failure_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// StudentStats is the snapshot handed to the tier-upgrade formula
type StudentStats struct {
	TasksCompleted int     `json:"tasks_completed"`
	AvgQuality     float64 `json:"avg_quality"`
	OnTimeRate     float64 `json:"on_time_rate"`
	TotalExp       int     `json:"total_exp"`
}

// Stats returns the formula-facing snapshot of the student's record.
func (s *Student) Stats() StudentStats {
	return StudentStats{
		TasksCompleted: s.TasksCompleted,
		AvgQuality:     s.AvgQuality,
		OnTimeRate:     s.OnTimeRate,
		TotalExp:       s.TotalExp,
	}
}
