package services

import (
	"context"

	"taskforge/backend/pkg/models"
)

// PaymentClient is the external payment-processor collaborator. Calls are
// idempotent by escrow id so a retried review transition is safe.
type PaymentClient interface {
	// FundEscrow charges the company and returns the processor reference.
	FundEscrow(ctx context.Context, escrowID string, grossCents int64) (string, error)
	// ReleaseToPayout moves the escrow's net amount to the contractor payout.
	ReleaseToPayout(ctx context.Context, escrowID string, netCents int64, payoutID string) error
	// RefundEscrow returns the held funds to the company.
	RefundEscrow(ctx context.Context, escrowID string) error
}

// ScreeningClient is the external screening-interview collaborator.
type ScreeningClient interface {
	// FindCompletedSession returns the most recent completed session id for
	// the template, or empty when none exists.
	FindCompletedSession(ctx context.Context, templateID string) (string, error)
	// CreateSingleUseLink creates a single-use interview link and returns
	// its identifier.
	CreateSingleUseLink(ctx context.Context, templateID string) (string, error)
}

// Notifier delivers user-facing notifications. Fire-and-forget: a failure
// never blocks or rolls back a state transition.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]any) error
}

// Notification event names emitted by the engine.
const (
	EventWorkUnitClaimed = "work_unit.claimed"
	EventAssigned        = "execution.assigned"
	EventRejected        = "execution.rejected"
	EventRevisionNeeded  = "execution.revision_needed"
	EventApproved        = "execution.approved"
	EventFailed          = "execution.failed"
	EventCancelled       = "execution.cancelled"
	EventTierUpgraded    = "student.tier_upgraded"
)

// FormulaProvider supplies the externally owned tier and experience
// formulas, keeping business-rule coupling out of the engine.
type FormulaProvider interface {
	CalculateExperience(complexity, revisionCount int, wasLate bool, qualityScore int) int
	// CheckTierUpgrade returns the tier the stats now qualify for, or nil
	// when no upgrade applies.
	CheckTierUpgrade(stats models.StudentStats) *models.Tier
}
