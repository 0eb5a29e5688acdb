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

// postCommitTimeout bounds the best-effort work dispatched after a commit;
// the request context may already be gone by then.
const postCommitTimeout = 10 * time.Second

// AssignmentService is the transactional core that turns a claim into an
// execution while holding the at-most-one-active-execution invariants.
type AssignmentService struct {
	store     repository.Store
	screening ScreeningClient
	notifier  Notifier
	logger    *logging.Logger
	metrics   *Metrics
}

// NewAssignmentService creates an AssignmentService.
func NewAssignmentService(store repository.Store, screening ScreeningClient, notifier Notifier, logger *logging.Logger, metrics *Metrics) *AssignmentService {
	return &AssignmentService{store: store, screening: screening, notifier: notifier, logger: logger, metrics: metrics}
}

// loadClaimInputs fetches everything eligibility needs and runs the check.
func loadClaimInputs(ctx context.Context, store repository.Store, workUnitID, studentID string) (*models.Student, *models.WorkUnit, *models.Escrow, error) {
	wu, err := store.GetWorkUnit(ctx, workUnitID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, Errf(CodeNotFound, "work unit %s not found", workUnitID)
		}
		return nil, nil, nil, err
	}
	student, err := store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, Errf(CodeNotFound, "student %s not found", studentID)
		}
		return nil, nil, nil, err
	}
	escrow, err := store.GetEscrowByWorkUnit(ctx, workUnitID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, nil, err
	}
	claimedToday, err := store.CountExecutionsSince(ctx, studentID, StartOfToday(time.Now()))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := CheckEligibility(student, wu, escrow, claimedToday); err != nil {
		return nil, nil, nil, err
	}
	return student, wu, escrow, nil
}

// Claim creates an execution for the student on the work unit. The
// eligibility check runs once up front and again inside the serializable
// transaction to close the race window between the UI check and commit.
func (s *AssignmentService) Claim(ctx context.Context, workUnitID, studentID string) (*models.Execution, error) {
	if _, _, _, err := loadClaimInputs(ctx, s.store, workUnitID, studentID); err != nil {
		s.metrics.recordClaim(ctx, "denied")
		return nil, err
	}

	var exec *models.Execution
	var wu *models.WorkUnit
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		var err error
		_, wu, _, err = loadClaimInputs(ctx, tx, workUnitID, studentID)
		if err != nil {
			return err
		}

		if _, err := tx.FindActiveExecution(ctx, workUnitID, studentID); err == nil {
			return Errf(CodeAlreadyClaimed, "student already holds an active execution on this work unit")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if wu.Mode == models.AssignmentModeAuto {
			n, err := tx.CountActiveExecutions(ctx, workUnitID)
			if err != nil {
				return err
			}
			if n > 0 {
				return Errf(CodeWorkUnitTaken, "work unit already has an active execution")
			}
		}

		status := models.ExecutionStatusAssigned
		switch {
		case wu.RequiresScreening():
			status = models.ExecutionStatusPendingScreening
		case wu.Mode == models.AssignmentModeManual:
			status = models.ExecutionStatusPendingReview
		}

		now := time.Now()
		exec = &models.Execution{
			ID:         uuid.New().String(),
			WorkUnitID: workUnitID,
			StudentID:  studentID,
			Status:     status,
			Deadline:   now.Add(wu.DeadlineDuration()),
		}
		if err := tx.CreateExecution(ctx, exec); err != nil {
			return err
		}

		templates, err := tx.ListMilestoneTemplates(ctx, workUnitID)
		if err != nil {
			return err
		}
		for _, t := range templates {
			tid := t.ID
			m := &models.TaskMilestone{
				ID:          uuid.New().String(),
				ExecutionID: exec.ID,
				TemplateID:  &tid,
				Description: t.Description,
				Position:    t.Position,
			}
			if err := tx.CreateMilestone(ctx, m); err != nil {
				return err
			}
		}

		// Manual mode keeps the unit active so further applicants queue up.
		if wu.Mode == models.AssignmentModeAuto {
			return tx.SetWorkUnitStatus(ctx, workUnitID, models.WorkUnitStatusInProgress)
		}
		return nil
	})
	if err != nil {
		outcome := "denied"
		if IsCode(err, CodeConflict) {
			outcome = "conflict"
		}
		s.metrics.recordClaim(ctx, outcome)
		return nil, err
	}

	s.metrics.recordClaim(ctx, "accepted")
	go s.afterClaim(exec, wu)
	return exec, nil
}

// afterClaim runs the best-effort post-commit steps: single-use screening
// link generation and the company notification. Failures are logged and
// never unwind the committed claim.
func (s *AssignmentService) afterClaim(exec *models.Execution, wu *models.WorkUnit) {
	ctx, cancel := context.WithTimeout(context.Background(), postCommitTimeout)
	defer cancel()

	if wu.RequiresScreening() {
		linkID, err := s.screening.CreateSingleUseLink(ctx, *wu.ScreeningTemplateID)
		if err != nil {
			s.logger.Error("screening link generation failed for execution %s: %v", exec.ID, err)
		} else if err := s.store.SetExecutionScreeningLink(ctx, exec.ID, linkID); err != nil {
			// Transitions may land between the claim's commit and this
			// attach; the single-column write cannot undo them.
			s.logger.Error("failed to attach screening link to execution %s: %v", exec.ID, err)
		}
	}

	if err := s.notifier.Notify(ctx, wu.CompanyID, EventWorkUnitClaimed, map[string]any{
		"work_unit_id": wu.ID,
		"execution_id": exec.ID,
		"student_id":   exec.StudentID,
	}); err != nil {
		s.logger.Warn("claim notification failed: %v", err)
	}
}

// Assign finalizes a manual-mode work unit: the chosen execution becomes
// assigned, the work unit flips to in_progress, and every other still-pending
// execution on the unit is cancelled in the same transaction.
func (s *AssignmentService) Assign(ctx context.Context, executionID, companyID string) (*models.Execution, error) {
	var exec *models.Execution
	var rejected []*models.Execution
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		rejected = rejected[:0]
		var err error
		exec, err = getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.Status != models.ExecutionStatusPendingReview {
			return Errf(CodeInvalidTransition, "execution is %s, assignment requires pending_review", exec.Status)
		}
		wu, err := tx.GetWorkUnit(ctx, exec.WorkUnitID)
		if err != nil {
			return err
		}
		if wu.CompanyID != companyID {
			return Errf(CodeForbidden, "work unit belongs to another company")
		}

		exec.Status = models.ExecutionStatusAssigned
		if err := tx.UpdateExecution(ctx, exec); err != nil {
			return err
		}
		if err := tx.SetWorkUnitStatus(ctx, wu.ID, models.WorkUnitStatusInProgress); err != nil {
			return err
		}

		pending, err := tx.ListPendingExecutions(ctx, wu.ID)
		if err != nil {
			return err
		}
		for _, other := range pending {
			if other.ID == exec.ID {
				continue
			}
			other.Status = models.ExecutionStatusCancelled
			if err := tx.UpdateExecution(ctx, other); err != nil {
				return err
			}
			rejected = append(rejected, other)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.recordTransition(ctx, string(models.ExecutionStatusAssigned))
	go s.afterAssign(exec, rejected)
	return exec, nil
}

func (s *AssignmentService) afterAssign(exec *models.Execution, rejected []*models.Execution) {
	ctx, cancel := context.WithTimeout(context.Background(), postCommitTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, exec.StudentID, EventAssigned, map[string]any{
		"execution_id": exec.ID,
		"work_unit_id": exec.WorkUnitID,
	}); err != nil {
		s.logger.Warn("assignment notification failed: %v", err)
	}
	for _, other := range rejected {
		if err := s.notifier.Notify(ctx, other.StudentID, EventRejected, map[string]any{
			"execution_id": other.ID,
			"work_unit_id": other.WorkUnitID,
		}); err != nil {
			s.logger.Warn("rejection notification failed: %v", err)
		}
	}
}

// Reject cancels a single pending application on a manual-mode work unit.
// The work unit stays active so other applicants remain in play.
func (s *AssignmentService) Reject(ctx context.Context, executionID, companyID string) (*models.Execution, error) {
	var exec *models.Execution
	err := runSerializable(ctx, s.store, func(tx repository.Store) error {
		var err error
		exec, err = getExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.Status != models.ExecutionStatusPendingReview && exec.Status != models.ExecutionStatusPendingScreening {
			return Errf(CodeInvalidTransition, "execution is %s, rejection requires a pending state", exec.Status)
		}
		wu, err := tx.GetWorkUnit(ctx, exec.WorkUnitID)
		if err != nil {
			return err
		}
		if wu.CompanyID != companyID {
			return Errf(CodeForbidden, "work unit belongs to another company")
		}
		exec.Status = models.ExecutionStatusCancelled
		return tx.UpdateExecution(ctx, exec)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.recordTransition(ctx, string(models.ExecutionStatusCancelled))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), postCommitTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, exec.StudentID, EventRejected, map[string]any{
			"execution_id": exec.ID,
			"work_unit_id": exec.WorkUnitID,
		}); err != nil {
			s.logger.Warn("rejection notification failed: %v", err)
		}
	}()
	return exec, nil
}

func getExecution(ctx context.Context, store repository.Store, id string) (*models.Execution, error) {
	exec, err := store.GetExecution(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Errf(CodeNotFound, "execution %s not found", id)
		}
		return nil, err
	}
	return exec, nil
}
