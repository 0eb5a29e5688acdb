package services

import (
	"errors"
	"fmt"
)

// Code is a machine-readable reason for a denied or failed operation.
// Callers render actionable messaging from it; the HTTP layer maps it to a
// status without inspecting messages.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeValidation           Code = "VALIDATION"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotActive            Code = "NOT_ACTIVE"
	CodeEscrowNotFunded      Code = "ESCROW_NOT_FUNDED"
	CodeIneligibleTier       Code = "INELIGIBLE_TIER"
	CodeIneligibleComplexity Code = "INELIGIBLE_COMPLEXITY"
	CodeDailyLimit           Code = "DAILY_LIMIT"
	CodeAlreadyClaimed       Code = "ALREADY_CLAIMED"
	CodeWorkUnitTaken        Code = "WORK_UNIT_TAKEN"
	CodeConflict             Code = "CONFLICT"
	CodeAwaitingReview       Code = "AWAITING_REVIEW"
	CodeRequiresScreening    Code = "REQUIRES_SCREENING"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeMilestonesIncomplete Code = "MILESTONES_INCOMPLETE"
	CodeMilestoneCompleted   Code = "MILESTONE_COMPLETED"
	CodeRevisionLimit        Code = "REVISION_LIMIT"
	CodePaymentFailed        Code = "PAYMENT_FAILED"
	CodeEscrowState          Code = "ESCROW_STATE"
)

// DomainError is a typed engine error. Details carries structured context,
// such as the descriptions of incomplete milestones blocking a submit.
type DomainError struct {
	Code    Code
	Message string
	Details []string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds a DomainError with a formatted message.
func Errf(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the reason code from err, or empty if err is not a
// DomainError.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
