package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"
)

const (
	// revisionWindow is how long a contractor has to address a
	// revision_needed verdict.
	revisionWindow = 48 * time.Hour
	// failurePenalty is the fixed experience deduction on a failed verdict.
	failurePenalty = 25
)

// ReviewInput carries the verdict payload: a quality score for approvals,
// a structured issue list for revision requests.
type ReviewInput struct {
	Verdict      models.ReviewVerdict `json:"verdict"`
	QualityScore int                  `json:"quality_score"`
	Issues       []string             `json:"issues,omitempty"`
}

// LifecycleService enforces the execution state machine: clock-in/out,
// submission, review verdicts, cancellation, and milestone completion, with
// their side effects on escrow, work-unit status, and student statistics.
type LifecycleService struct {
	store     repository.Store
	escrow    *EscrowLedger
	screening ScreeningClient
	formula   FormulaProvider
	notifier  Notifier
	logger    *logging.Logger
	metrics   *Metrics
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(store repository.Store, escrow *EscrowLedger, screening ScreeningClient, formula FormulaProvider, notifier Notifier, logger *logging.Logger, metrics *Metrics) *LifecycleService {
	return &LifecycleService{store: store, escrow: escrow, screening: screening, formula: formula, notifier: notifier, logger: logger, metrics: metrics}
}

// ClockIn starts active work. Allowed from assigned and revision_needed; an
// execution still pending_screening passes once a completed interview
// session for the work unit's template can be linked, which happens lazily
// here because the interview may finish after the claim. On a manual-mode
// work unit a screened applicant advances only to pending_review and waits
// for the company to assign.
func (s *LifecycleService) ClockIn(ctx context.Context, executionID, studentID string) (*models.Execution, error) {
	var exec *models.Execution
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		var err error
		exec, err = getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.StudentID != studentID {
			return Errf(CodeForbidden, "execution belongs to another student")
		}
		switch exec.Status {
		case models.ExecutionStatusAssigned, models.ExecutionStatusRevisionNeeded, models.ExecutionStatusPendingScreening:
		case models.ExecutionStatusPendingReview:
			return Errf(CodeAwaitingReview, "awaiting company review")
		default:
			return Errf(CodeInvalidTransition, "cannot clock in from %s", exec.Status)
		}

		wu, err := tx.GetWorkUnit(ctx, exec.WorkUnitID)
		if err != nil {
			return err
		}
		if !CanStartWork(wu, exec) {
			sessionID, err := s.screening.FindCompletedSession(ctx, *wu.ScreeningTemplateID)
			if err != nil {
				return Errf(CodeRequiresScreening, "screening lookup failed: %v", err)
			}
			if sessionID == "" {
				return Errf(CodeRequiresScreening, "screening interview not completed")
			}
			exec.ScreeningSessionID = &sessionID
		}

		// Manual-mode applicants leave screening into the company's
		// review queue; only an assignment lets them start work.
		if exec.Status == models.ExecutionStatusPendingScreening && wu.Mode == models.AssignmentModeManual {
			exec.Status = models.ExecutionStatusPendingReview
			return tx.UpdateExecution(ctx, exec)
		}

		student, err := tx.GetStudent(ctx, exec.StudentID)
		if err != nil {
			return err
		}

		now := time.Now()
		exec.Status = models.ExecutionStatusClockedIn
		exec.ClockInAt = &now
		exec.ClockOutAt = nil
		if err := tx.UpdateExecution(ctx, exec); err != nil {
			return err
		}
		return tx.CreateProofRequest(ctx, &models.ProofRequest{
			ID:          uuid.New().String(),
			ExecutionID: exec.ID,
			DueAt:       now.Add(student.Tier.Policy().CheckInInterval),
			Status:      models.ProofRequestStatusPending,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.recordTransition(ctx, string(exec.Status))
	return exec, nil
}

// ClockOut pauses active work: back to assigned, clock-out stamped, any
// still-pending proof-of-work request expired.
func (s *LifecycleService) ClockOut(ctx context.Context, executionID, studentID string) (*models.Execution, error) {
	var exec *models.Execution
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		var err error
		exec, err = getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.StudentID != studentID {
			return Errf(CodeForbidden, "execution belongs to another student")
		}
		if exec.Status != models.ExecutionStatusClockedIn {
			return Errf(CodeInvalidTransition, "cannot clock out from %s", exec.Status)
		}
		now := time.Now()
		exec.Status = models.ExecutionStatusAssigned
		exec.ClockOutAt = &now
		if err := tx.UpdateExecution(ctx, exec); err != nil {
			return err
		}
		return tx.ExpirePendingProofRequests(ctx, exec.ID)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.recordTransition(ctx, string(models.ExecutionStatusAssigned))
	return exec, nil
}

// Submit hands in the work. All milestone instances must be completed; an
// incomplete checklist returns the blocking descriptions without touching
// the execution.
func (s *LifecycleService) Submit(ctx context.Context, executionID, studentID string, deliverables []string) (*models.Execution, error) {
	var exec *models.Execution
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		var err error
		exec, err = getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.StudentID != studentID {
			return Errf(CodeForbidden, "execution belongs to another student")
		}
		if exec.Status.Terminal() {
			return Errf(CodeInvalidTransition, "execution is %s", exec.Status)
		}
		switch exec.Status {
		case models.ExecutionStatusAssigned, models.ExecutionStatusClockedIn, models.ExecutionStatusRevisionNeeded:
		default:
			return Errf(CodeInvalidTransition, "cannot submit from %s", exec.Status)
		}

		milestones, err := tx.ListMilestones(ctx, exec.ID)
		if err != nil {
			return err
		}
		if progress := Progress(milestones); !progress.Ready {
			return &DomainError{
				Code:    CodeMilestonesIncomplete,
				Message: "milestones incomplete",
				Details: progress.Incomplete,
			}
		}

		now := time.Now()
		exec.WasLate = now.After(exec.Deadline)
		if exec.Status == models.ExecutionStatusClockedIn {
			exec.ClockOutAt = &now
			if err := tx.ExpirePendingProofRequests(ctx, exec.ID); err != nil {
				return err
			}
		}
		exec.Status = models.ExecutionStatusSubmitted
		exec.SubmittedAt = &now
		exec.Deliverables = deliverables
		return tx.UpdateExecution(ctx, exec)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.recordTransition(ctx, string(models.ExecutionStatusSubmitted))
	return exec, nil
}

// Review applies a company verdict to a submitted execution. Approvals and
// failures apply all of their multi-row effects atomically; a payment
// collaborator failure aborts the whole transition leaving the execution
// submitted and safe to retry.
func (s *LifecycleService) Review(ctx context.Context, executionID, companyID string, input ReviewInput) (*models.Execution, error) {
	var exec *models.Execution
	var upgraded *models.Tier
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		upgraded = nil
		var err error
		exec, err = getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.Status != models.ExecutionStatusSubmitted {
			return Errf(CodeInvalidTransition, "review requires submitted, execution is %s", exec.Status)
		}
		wu, err := tx.GetWorkUnit(ctx, exec.WorkUnitID)
		if err != nil {
			return err
		}
		if wu.CompanyID != companyID {
			return Errf(CodeForbidden, "work unit belongs to another company")
		}

		switch input.Verdict {
		case models.VerdictApproved:
			upgraded, err = s.approve(ctx, tx, exec, wu, input.QualityScore)
			return err
		case models.VerdictRevisionNeeded:
			return s.requestRevision(ctx, tx, exec, wu, input.Issues)
		case models.VerdictFailed:
			return s.fail(ctx, tx, exec, wu)
		default:
			return Errf(CodeValidation, "unknown verdict %q", input.Verdict)
		}
	})
	if err != nil {
		return nil, err
	}

	s.metrics.recordTransition(ctx, string(exec.Status))
	go s.afterReview(exec, upgraded)
	return exec, nil
}

func (s *LifecycleService) approve(ctx context.Context, tx repository.Store, exec *models.Execution, wu *models.WorkUnit, qualityScore int) (*models.Tier, error) {
	if qualityScore < 0 || qualityScore > 100 {
		return nil, Errf(CodeValidation, "quality score must be 0-100")
	}
	escrow, err := tx.GetEscrowByWorkUnit(ctx, wu.ID)
	if err != nil {
		return nil, err
	}
	student, err := tx.GetStudent(ctx, exec.StudentID)
	if err != nil {
		return nil, err
	}

	exp := s.formula.CalculateExperience(wu.ComplexityScore, exec.RevisionCount, exec.WasLate, qualityScore)

	// Running averages recomputed from (old average, old count, new sample)
	// inside the same transaction as the terminal transition.
	n := float64(student.TasksCompleted)
	onTime := 0.0
	if !exec.WasLate {
		onTime = 1.0
	}
	student.AvgQuality = (student.AvgQuality*n + float64(qualityScore)) / (n + 1)
	student.OnTimeRate = (student.OnTimeRate*n + onTime) / (n + 1)
	student.TasksCompleted++
	student.TotalExp += exp

	var upgraded *models.Tier
	if next := s.formula.CheckTierUpgrade(student.Stats()); next != nil && *next != student.Tier && next.AtLeast(student.Tier) {
		student.Tier = *next
		upgraded = next
	}
	if err := tx.UpdateStudent(ctx, student); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		ID:          uuid.New().String(),
		ExecutionID: exec.ID,
		EscrowID:    escrow.ID,
		AmountCents: escrow.NetCents,
		Status:      models.PayoutStatusPending,
	}
	if err := tx.CreatePayout(ctx, payout); err != nil {
		return nil, err
	}
	if err := s.escrow.Release(ctx, tx, escrow, payout.ID); err != nil {
		return nil, err
	}
	if err := tx.SetWorkUnitStatus(ctx, wu.ID, models.WorkUnitStatusCompleted); err != nil {
		return nil, err
	}

	now := time.Now()
	exec.Status = models.ExecutionStatusApproved
	exec.CompletedAt = &now
	exec.QualityScore = &qualityScore
	exec.PayoutID = &payout.ID
	return upgraded, tx.UpdateExecution(ctx, exec)
}

func (s *LifecycleService) requestRevision(ctx context.Context, tx repository.Store, exec *models.Execution, wu *models.WorkUnit, issues []string) error {
	if len(issues) == 0 {
		return Errf(CodeValidation, "revision verdict requires a non-empty issue list")
	}
	if exec.RevisionCount >= wu.RevisionLimit {
		return Errf(CodeRevisionLimit, "revision limit of %d reached, approve or fail instead", wu.RevisionLimit)
	}
	exec.RevisionCount++
	if err := tx.CreateRevisionRequest(ctx, &models.RevisionRequest{
		ID:          uuid.New().String(),
		ExecutionID: exec.ID,
		Number:      exec.RevisionCount,
		Issues:      issues,
		Deadline:    time.Now().Add(revisionWindow),
	}); err != nil {
		return err
	}
	exec.Status = models.ExecutionStatusRevisionNeeded
	return tx.UpdateExecution(ctx, exec)
}

func (s *LifecycleService) fail(ctx context.Context, tx repository.Store, exec *models.Execution, wu *models.WorkUnit) error {
	escrow, err := tx.GetEscrowByWorkUnit(ctx, wu.ID)
	if err != nil {
		return err
	}
	student, err := tx.GetStudent(ctx, exec.StudentID)
	if err != nil {
		return err
	}

	now := time.Now()
	student.TotalExp -= failurePenalty
	if student.TotalExp < 0 {
		student.TotalExp = 0
	}
	student.FailureCount++
	student.LastFailureAt = &now
	if err := tx.UpdateStudent(ctx, student); err != nil {
		return err
	}

	if err := s.escrow.Refund(ctx, tx, escrow); err != nil {
		return err
	}
	// The unit goes back on the board for another contractor.
	if err := tx.SetWorkUnitStatus(ctx, wu.ID, models.WorkUnitStatusActive); err != nil {
		return err
	}

	exec.Status = models.ExecutionStatusFailed
	exec.CompletedAt = &now
	return tx.UpdateExecution(ctx, exec)
}

func (s *LifecycleService) afterReview(exec *models.Execution, upgraded *models.Tier) {
	ctx, cancel := context.WithTimeout(context.Background(), postCommitTimeout)
	defer cancel()

	event := map[models.ExecutionStatus]string{
		models.ExecutionStatusApproved:       EventApproved,
		models.ExecutionStatusRevisionNeeded: EventRevisionNeeded,
		models.ExecutionStatusFailed:         EventFailed,
	}[exec.Status]
	if event == "" {
		return
	}
	if err := s.notifier.Notify(ctx, exec.StudentID, event, map[string]any{
		"execution_id": exec.ID,
		"work_unit_id": exec.WorkUnitID,
	}); err != nil {
		s.logger.Warn("review notification failed: %v", err)
	}
	if upgraded != nil {
		if err := s.notifier.Notify(ctx, exec.StudentID, EventTierUpgraded, map[string]any{
			"tier": *upgraded,
		}); err != nil {
			s.logger.Warn("tier upgrade notification failed: %v", err)
		}
	}
}

// Cancel abandons an execution on behalf of its student or the company that
// owns the work unit. Denied for approved and already-cancelled executions;
// the work unit returns to active when this execution was the one holding it
// in progress. Ownership is checked inside the transaction so it holds
// against the rows the cancel actually commits over.
func (s *LifecycleService) Cancel(ctx context.Context, executionID, actorID string) (*models.Execution, error) {
	var exec *models.Execution
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		var err error
		exec, err = getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.Status == models.ExecutionStatusApproved || exec.Status == models.ExecutionStatusCancelled {
			return Errf(CodeInvalidTransition, "cannot cancel an execution that is %s", exec.Status)
		}
		wu, err := tx.GetWorkUnit(ctx, exec.WorkUnitID)
		if err != nil {
			return err
		}
		if actorID != exec.StudentID && actorID != wu.CompanyID {
			return Errf(CodeForbidden, "execution belongs to another student or company")
		}
		exec.Status = models.ExecutionStatusCancelled
		if err := tx.UpdateExecution(ctx, exec); err != nil {
			return err
		}
		if wu.Status == models.WorkUnitStatusInProgress {
			return tx.SetWorkUnitStatus(ctx, wu.ID, models.WorkUnitStatusActive)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.recordTransition(ctx, string(models.ExecutionStatusCancelled))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), postCommitTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, exec.StudentID, EventCancelled, map[string]any{
			"execution_id": exec.ID,
		}); err != nil {
			s.logger.Warn("cancel notification failed: %v", err)
		}
	}()
	return exec, nil
}

// CompleteMilestone records completion of one milestone instance with
// optional evidence and notes. Terminal executions reject further milestone
// writes.
func (s *LifecycleService) CompleteMilestone(ctx context.Context, executionID, milestoneID string, evidence, notes *string) (*models.TaskMilestone, error) {
	var milestone *models.TaskMilestone
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		exec, err := getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.Status.Terminal() {
			return Errf(CodeInvalidTransition, "execution is %s", exec.Status)
		}
		milestone, err = tx.GetMilestone(ctx, milestoneID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return Errf(CodeNotFound, "milestone %s not found", milestoneID)
			}
			return err
		}
		if milestone.ExecutionID != exec.ID {
			return Errf(CodeNotFound, "milestone %s not found on execution", milestoneID)
		}
		if milestone.Completed() {
			return Errf(CodeMilestoneCompleted, "milestone already completed")
		}
		now := time.Now()
		milestone.CompletedAt = &now
		milestone.Evidence = evidence
		milestone.Notes = notes
		return tx.UpdateMilestone(ctx, milestone)
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

// MilestoneProgress reports the checklist state for an execution. Exposed
// for monitoring surfaces; submission uses the same computation internally.
func (s *LifecycleService) MilestoneProgress(ctx context.Context, executionID string) (*MilestoneProgress, error) {
	if _, err := getExecution(ctx, s.store, executionID); err != nil {
		return nil, err
	}
	milestones, err := s.store.ListMilestones(ctx, executionID)
	if err != nil {
		return nil, err
	}
	p := Progress(milestones)
	return &p, nil
}
