package services

import (
	"context"
	"time"

	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"
)

// EscrowLedger enforces escrow-state invariants independent of which
// execution transition triggered them. Release and Refund are idempotent
// against terminal states so retried review calls are safe.
type EscrowLedger struct {
	payments PaymentClient
}

// NewEscrowLedger creates an EscrowLedger wrapping the payment collaborator.
func NewEscrowLedger(payments PaymentClient) *EscrowLedger {
	return &EscrowLedger{payments: payments}
}

// Fund charges the company and moves the escrow from pending to funded.
func (l *EscrowLedger) Fund(ctx context.Context, store repository.Store, e *models.Escrow) error {
	if e.Status != models.EscrowStatusPending {
		if e.Status == models.EscrowStatusFunded {
			return nil
		}
		return Errf(CodeEscrowState, "cannot fund escrow in state %s", e.Status)
	}
	ref, err := l.payments.FundEscrow(ctx, e.ID, e.GrossCents)
	if err != nil {
		return Errf(CodePaymentFailed, "fund escrow: %v", err)
	}
	now := time.Now()
	e.Status = models.EscrowStatusFunded
	e.PaymentRef = &ref
	e.FundedAt = &now
	return store.UpdateEscrow(ctx, e)
}

// Release moves funded escrow to released and pushes the net amount to the
// payout. A second release attempt is a no-op; a release after refund is
// likewise a no-op returning the existing terminal state.
func (l *EscrowLedger) Release(ctx context.Context, store repository.Store, e *models.Escrow, payoutID string) error {
	switch e.Status {
	case models.EscrowStatusReleased, models.EscrowStatusRefunded:
		return nil
	case models.EscrowStatusFunded:
	default:
		return Errf(CodeEscrowState, "cannot release escrow in state %s", e.Status)
	}
	if err := l.payments.ReleaseToPayout(ctx, e.ID, e.NetCents, payoutID); err != nil {
		return Errf(CodePaymentFailed, "release escrow: %v", err)
	}
	now := time.Now()
	e.Status = models.EscrowStatusReleased
	e.ClosedAt = &now
	return store.UpdateEscrow(ctx, e)
}

// Refund returns funded escrow to the company. Idempotent like Release.
func (l *EscrowLedger) Refund(ctx context.Context, store repository.Store, e *models.Escrow) error {
	switch e.Status {
	case models.EscrowStatusReleased, models.EscrowStatusRefunded:
		return nil
	case models.EscrowStatusFunded:
	default:
		return Errf(CodeEscrowState, "cannot refund escrow in state %s", e.Status)
	}
	if err := l.payments.RefundEscrow(ctx, e.ID); err != nil {
		return Errf(CodePaymentFailed, "refund escrow: %v", err)
	}
	now := time.Now()
	e.Status = models.EscrowStatusRefunded
	e.ClosedAt = &now
	return store.UpdateEscrow(ctx, e)
}
