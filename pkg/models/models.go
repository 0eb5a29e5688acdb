// Package models defines the domain models for the marketplace engine
package models

import (
	"time"
)

// AssignmentMode controls how a work unit is matched to a contractor
type AssignmentMode string

const (
	// AssignmentModeAuto gives the work unit to the first eligible claimant
	AssignmentModeAuto AssignmentMode = "auto"
	// AssignmentModeManual collects applicants and lets the company pick one
	AssignmentModeManual AssignmentMode = "manual"
)

// WorkUnitStatus represents the lifecycle status of a work unit
type WorkUnitStatus string

const (
	WorkUnitStatusDraft      WorkUnitStatus = "draft"
	WorkUnitStatusActive     WorkUnitStatus = "active"
	WorkUnitStatusInProgress WorkUnitStatus = "in_progress"
	WorkUnitStatusCompleted  WorkUnitStatus = "completed"
	WorkUnitStatusCancelled  WorkUnitStatus = "cancelled"
)

// ExecutionStatus represents the status of one contractor's attempt
type ExecutionStatus string

const (
	ExecutionStatusPendingScreening ExecutionStatus = "pending_screening"
	ExecutionStatusPendingReview    ExecutionStatus = "pending_review"
	ExecutionStatusAssigned         ExecutionStatus = "assigned"
	ExecutionStatusClockedIn        ExecutionStatus = "clocked_in"
	ExecutionStatusSubmitted        ExecutionStatus = "submitted"
	ExecutionStatusRevisionNeeded   ExecutionStatus = "revision_needed"
	ExecutionStatusApproved         ExecutionStatus = "approved"
	ExecutionStatusFailed           ExecutionStatus = "failed"
	ExecutionStatusCancelled        ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal executions are
// retained for audit and reject all further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusApproved, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// EscrowStatus represents the status of held funds for a work unit
type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusFunded   EscrowStatus = "funded"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

// PayoutStatus represents the status of a contractor payout
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
)

// ProofRequestStatus represents the status of a proof-of-work check-in
type ProofRequestStatus string

const (
	ProofRequestStatusPending   ProofRequestStatus = "pending"
	ProofRequestStatusCompleted ProofRequestStatus = "completed"
	ProofRequestStatusExpired   ProofRequestStatus = "expired"
)

// ReviewVerdict is a company's verdict on a submitted execution
type ReviewVerdict string

const (
	VerdictApproved       ReviewVerdict = "approved"
	VerdictRevisionNeeded ReviewVerdict = "revision_needed"
	VerdictFailed         ReviewVerdict = "failed"
)

// WorkUnit is a postable, priced task owned by a company
type WorkUnit struct {
	ID                  string         `json:"id" db:"id"`
	CompanyID           string         `json:"company_id" db:"company_id"`
	Title               string         `json:"title" db:"title"`
	Description         *string        `json:"description,omitempty" db:"description"`
	PriceCents          int64          `json:"price_cents" db:"price_cents"`
	DeadlineSeconds     int64          `json:"deadline_seconds" db:"deadline_seconds"`
	MinTier             Tier           `json:"min_tier" db:"min_tier"`
	ComplexityScore     int            `json:"complexity_score" db:"complexity_score"`
	RevisionLimit       int            `json:"revision_limit" db:"revision_limit"`
	Mode                AssignmentMode `json:"assignment_mode" db:"assignment_mode"`
	ScreeningTemplateID *string        `json:"screening_template_id,omitempty" db:"screening_template_id"`
	Status              WorkUnitStatus `json:"status" db:"status"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// DeadlineDuration returns the time a contractor has after claiming.
func (w *WorkUnit) DeadlineDuration() time.Duration {
	return time.Duration(w.DeadlineSeconds) * time.Second
}

// RequiresScreening reports whether a screening interview gates active work.
func (w *WorkUnit) RequiresScreening() bool {
	return w.ScreeningTemplateID != nil && *w.ScreeningTemplateID != ""
}

// Execution is one contractor's attempt at a work unit. It carries its own
// status independent of the work unit's and is never deleted.
type Execution struct {
	ID                 string          `json:"id" db:"id"`
	WorkUnitID         string          `json:"work_unit_id" db:"work_unit_id"`
	StudentID          string          `json:"student_id" db:"student_id"`
	Status             ExecutionStatus `json:"status" db:"status"`
	Deadline           time.Time       `json:"deadline" db:"deadline"`
	ClockInAt          *time.Time      `json:"clock_in_at,omitempty" db:"clock_in_at"`
	ClockOutAt         *time.Time      `json:"clock_out_at,omitempty" db:"clock_out_at"`
	SubmittedAt        *time.Time      `json:"submitted_at,omitempty" db:"submitted_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	RevisionCount      int             `json:"revision_count" db:"revision_count"`
	QualityScore       *int            `json:"quality_score,omitempty" db:"quality_score"`
	WasLate            bool            `json:"was_late" db:"was_late"`
	Deliverables       []string        `json:"deliverables,omitempty" db:"deliverables"`
	PayoutID           *string         `json:"payout_id,omitempty" db:"payout_id"`
	ScreeningLinkID    *string         `json:"screening_link_id,omitempty" db:"screening_link_id"`
	ScreeningSessionID *string         `json:"screening_session_id,omitempty" db:"screening_session_id"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// Escrow holds funds for a work unit until release or refund. One-to-one
// with its work unit; released or refunded exactly once.
type Escrow struct {
	ID         string       `json:"id" db:"id"`
	WorkUnitID string       `json:"work_unit_id" db:"work_unit_id"`
	GrossCents int64        `json:"gross_cents" db:"gross_cents"`
	FeeCents   int64        `json:"fee_cents" db:"fee_cents"`
	NetCents   int64        `json:"net_cents" db:"net_cents"`
	Status     EscrowStatus `json:"status" db:"status"`
	PaymentRef *string      `json:"payment_ref,omitempty" db:"payment_ref"`
	FundedAt   *time.Time   `json:"funded_at,omitempty" db:"funded_at"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// MilestoneTemplate is a work-unit-scoped checkpoint definition, copied into
// per-execution milestone instances when an execution is created.
type MilestoneTemplate struct {
	ID          string    `json:"id" db:"id"`
	WorkUnitID  string    `json:"work_unit_id" db:"work_unit_id"`
	Description string    `json:"description" db:"description"`
	Position    int       `json:"position" db:"position"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TaskMilestone is an execution-scoped milestone instance
type TaskMilestone struct {
	ID          string     `json:"id" db:"id"`
	ExecutionID string     `json:"execution_id" db:"execution_id"`
	TemplateID  *string    `json:"template_id,omitempty" db:"template_id"`
	Description string     `json:"description" db:"description"`
	Position    int        `json:"position" db:"position"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Evidence    *string    `json:"evidence,omitempty" db:"evidence"`
	Notes       *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Completed reports whether the milestone has been marked done.
func (m *TaskMilestone) Completed() bool { return m.CompletedAt != nil }

// RevisionRequest is an append-only record of a revision_needed verdict,
// numbered sequentially per execution.
type RevisionRequest struct {
	ID          string    `json:"id" db:"id"`
	ExecutionID string    `json:"execution_id" db:"execution_id"`
	Number      int       `json:"number" db:"number"`
	Issues      []string  `json:"issues" db:"issues"`
	Deadline    time.Time `json:"deadline" db:"deadline"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Payout is money owed to a contractor for an approved execution
type Payout struct {
	ID          string       `json:"id" db:"id"`
	ExecutionID string       `json:"execution_id" db:"execution_id"`
	EscrowID    string       `json:"escrow_id" db:"escrow_id"`
	AmountCents int64        `json:"amount_cents" db:"amount_cents"`
	Status      PayoutStatus `json:"status" db:"status"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// ProofRequest is a scheduled proof-of-work check-in for a clocked-in
// execution. Pending requests are expired on clock-out.
type ProofRequest struct {
	ID          string             `json:"id" db:"id"`
	ExecutionID string             `json:"execution_id" db:"execution_id"`
	DueAt       time.Time          `json:"due_at" db:"due_at"`
	Status      ProofRequestStatus `json:"status" db:"status"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// Company owns work units and reviews submissions
type Company struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
