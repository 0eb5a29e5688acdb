package repository

import (
	"context"
	"errors"
	"time"

	"taskforge/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for the execution engine. InTx runs the
// given function against a store bound to a serializable transaction; every
// cross-record invariant in the engine is enforced through it.
type Store interface {
	// InTx executes fn inside a serializable transaction. The Store passed
	// to fn shares the transaction; the receiver remains usable afterwards.
	InTx(ctx context.Context, fn func(Store) error) error

	CreateCompany(ctx context.Context, c *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)

	CreateStudent(ctx context.Context, s *models.Student) error
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	UpdateStudent(ctx context.Context, s *models.Student) error

	CreateWorkUnit(ctx context.Context, w *models.WorkUnit) error
	GetWorkUnit(ctx context.Context, id string) (*models.WorkUnit, error)
	SetWorkUnitStatus(ctx context.Context, id string, status models.WorkUnitStatus) error
	ListOpenWorkUnits(ctx context.Context) ([]*models.WorkUnit, error)

	CreateEscrow(ctx context.Context, e *models.Escrow) error
	GetEscrowByWorkUnit(ctx context.Context, workUnitID string) (*models.Escrow, error)
	UpdateEscrow(ctx context.Context, e *models.Escrow) error

	CreateExecution(ctx context.Context, e *models.Execution) error
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	UpdateExecution(ctx context.Context, e *models.Execution) error
	// SetExecutionScreeningLink attaches the screening link id without
	// touching any other column, so a post-commit attach cannot overwrite
	// a transition that landed in the meantime.
	SetExecutionScreeningLink(ctx context.Context, id, linkID string) error
	// FindActiveExecution returns the non-terminal execution for the
	// (work unit, student) pair, or ErrNotFound.
	FindActiveExecution(ctx context.Context, workUnitID, studentID string) (*models.Execution, error)
	// CountActiveExecutions counts non-terminal executions on the work unit
	// across all students.
	CountActiveExecutions(ctx context.Context, workUnitID string) (int, error)
	// ListPendingExecutions returns executions on the work unit still in
	// pending_review or pending_screening.
	ListPendingExecutions(ctx context.Context, workUnitID string) ([]*models.Execution, error)
	// CountExecutionsSince counts executions the student created at or
	// after the given instant.
	CountExecutionsSince(ctx context.Context, studentID string, since time.Time) (int, error)

	CreateMilestoneTemplate(ctx context.Context, t *models.MilestoneTemplate) error
	ListMilestoneTemplates(ctx context.Context, workUnitID string) ([]*models.MilestoneTemplate, error)

	CreateMilestone(ctx context.Context, m *models.TaskMilestone) error
	GetMilestone(ctx context.Context, id string) (*models.TaskMilestone, error)
	ListMilestones(ctx context.Context, executionID string) ([]*models.TaskMilestone, error)
	UpdateMilestone(ctx context.Context, m *models.TaskMilestone) error

	CreateRevisionRequest(ctx context.Context, r *models.RevisionRequest) error
	ListRevisionRequests(ctx context.Context, executionID string) ([]*models.RevisionRequest, error)

	CreatePayout(ctx context.Context, p *models.Payout) error

	CreateProofRequest(ctx context.Context, p *models.ProofRequest) error
	// ExpirePendingProofRequests marks every pending proof request on the
	// execution as expired.
	ExpirePendingProofRequests(ctx context.Context, executionID string) error
}
