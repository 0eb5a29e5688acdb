package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskforge/backend/pkg/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so every query
// method works inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the PostgreSQL implementation of the Store interface.
type Postgres struct {
	pool *pgxpool.Pool
	db   querier
}

// NewPostgres creates a new Postgres store backed by the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, db: pool}
}

// InTx runs fn against a store bound to a serializable transaction.
// Nested calls are not supported; the engine opens one transaction per
// operation.
func (s *Postgres) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return errors.New("nested transaction")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Postgres{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// IsSerializationFailure reports whether err is a serialization or deadlock
// failure that is safe to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// CreateCompany inserts a company.
func (s *Postgres) CreateCompany(ctx context.Context, c *models.Company) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO companies (id, name) VALUES ($1, $2)",
		c.ID, c.Name)
	return err
}

// GetCompany retrieves a company by id.
func (s *Postgres) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var c models.Company
	err := s.db.QueryRow(ctx,
		"SELECT id, name, created_at FROM companies WHERE id = $1", id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CreateStudent inserts a student.
func (s *Postgres) CreateStudent(ctx context.Context, st *models.Student) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO students (id, name, tier, tasks_completed, avg_quality, on_time_rate, total_exp, failure_count, last_failure_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		st.ID, st.Name, st.Tier, st.TasksCompleted, st.AvgQuality, st.OnTimeRate, st.TotalExp, st.FailureCount, st.LastFailureAt)
	return err
}

// GetStudent retrieves a student by id.
func (s *Postgres) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var st models.Student
	err := s.db.QueryRow(ctx,
		`SELECT id, name, tier, tasks_completed, avg_quality, on_time_rate, total_exp, failure_count, last_failure_at, created_at, updated_at
		 FROM students WHERE id = $1`, id).
		Scan(&st.ID, &st.Name, &st.Tier, &st.TasksCompleted, &st.AvgQuality, &st.OnTimeRate,
			&st.TotalExp, &st.FailureCount, &st.LastFailureAt, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

// UpdateStudent persists the student's mutable fields.
func (s *Postgres) UpdateStudent(ctx context.Context, st *models.Student) error {
	_, err := s.db.Exec(ctx,
		`UPDATE students SET tier = $1, tasks_completed = $2, avg_quality = $3, on_time_rate = $4,
		 total_exp = $5, failure_count = $6, last_failure_at = $7, updated_at = now()
		 WHERE id = $8`,
		st.Tier, st.TasksCompleted, st.AvgQuality, st.OnTimeRate, st.TotalExp,
		st.FailureCount, st.LastFailureAt, st.ID)
	return err
}

// CreateWorkUnit inserts a work unit.
func (s *Postgres) CreateWorkUnit(ctx context.Context, w *models.WorkUnit) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO work_units (id, company_id, title, description, price_cents, deadline_seconds,
		 min_tier, complexity_score, revision_limit, assignment_mode, screening_template_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		w.ID, w.CompanyID, w.Title, w.Description, w.PriceCents, w.DeadlineSeconds,
		w.MinTier, w.ComplexityScore, w.RevisionLimit, w.Mode, w.ScreeningTemplateID, w.Status)
	return err
}

const workUnitColumns = `id, company_id, title, description, price_cents, deadline_seconds,
	min_tier, complexity_score, revision_limit, assignment_mode, screening_template_id,
	status, created_at, updated_at`

func scanWorkUnit(row pgx.Row) (*models.WorkUnit, error) {
	var w models.WorkUnit
	err := row.Scan(&w.ID, &w.CompanyID, &w.Title, &w.Description, &w.PriceCents,
		&w.DeadlineSeconds, &w.MinTier, &w.ComplexityScore, &w.RevisionLimit,
		&w.Mode, &w.ScreeningTemplateID, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// GetWorkUnit retrieves a work unit by id.
func (s *Postgres) GetWorkUnit(ctx context.Context, id string) (*models.WorkUnit, error) {
	return scanWorkUnit(s.db.QueryRow(ctx,
		"SELECT "+workUnitColumns+" FROM work_units WHERE id = $1", id))
}

// SetWorkUnitStatus flips the work unit's lifecycle status.
func (s *Postgres) SetWorkUnitStatus(ctx context.Context, id string, status models.WorkUnitStatus) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE work_units SET status = $1, updated_at = now() WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenWorkUnits returns active work units, newest first.
func (s *Postgres) ListOpenWorkUnits(ctx context.Context) ([]*models.WorkUnit, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+workUnitColumns+" FROM work_units WHERE status = $1 ORDER BY created_at DESC",
		models.WorkUnitStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []*models.WorkUnit
	for rows.Next() {
		w, err := scanWorkUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, w)
	}
	return units, rows.Err()
}

// CreateEscrow inserts an escrow record.
func (s *Postgres) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO escrows (id, work_unit_id, gross_cents, fee_cents, net_cents, status, payment_ref, funded_at, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WorkUnitID, e.GrossCents, e.FeeCents, e.NetCents, e.Status, e.PaymentRef, e.FundedAt, e.ClosedAt)
	return err
}

// GetEscrowByWorkUnit retrieves the escrow held for a work unit.
func (s *Postgres) GetEscrowByWorkUnit(ctx context.Context, workUnitID string) (*models.Escrow, error) {
	var e models.Escrow
	err := s.db.QueryRow(ctx,
		`SELECT id, work_unit_id, gross_cents, fee_cents, net_cents, status, payment_ref, funded_at, closed_at, created_at
		 FROM escrows WHERE work_unit_id = $1`, workUnitID).
		Scan(&e.ID, &e.WorkUnitID, &e.GrossCents, &e.FeeCents, &e.NetCents, &e.Status,
			&e.PaymentRef, &e.FundedAt, &e.ClosedAt, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// UpdateEscrow persists the escrow's mutable fields.
func (s *Postgres) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	_, err := s.db.Exec(ctx,
		`UPDATE escrows SET status = $1, payment_ref = $2, funded_at = $3, closed_at = $4 WHERE id = $5`,
		e.Status, e.PaymentRef, e.FundedAt, e.ClosedAt, e.ID)
	return err
}

// CreateExecution inserts an execution.
func (s *Postgres) CreateExecution(ctx context.Context, e *models.Execution) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO executions (id, work_unit_id, student_id, status, deadline, revision_count, was_late)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.WorkUnitID, e.StudentID, e.Status, e.Deadline, e.RevisionCount, e.WasLate)
	return err
}

const executionColumns = `id, work_unit_id, student_id, status, deadline, clock_in_at, clock_out_at,
	submitted_at, completed_at, revision_count, quality_score, was_late, deliverables,
	payout_id, screening_link_id, screening_session_id, created_at, updated_at`

func scanExecution(row pgx.Row) (*models.Execution, error) {
	var e models.Execution
	err := row.Scan(&e.ID, &e.WorkUnitID, &e.StudentID, &e.Status, &e.Deadline,
		&e.ClockInAt, &e.ClockOutAt, &e.SubmittedAt, &e.CompletedAt, &e.RevisionCount,
		&e.QualityScore, &e.WasLate, &e.Deliverables, &e.PayoutID,
		&e.ScreeningLinkID, &e.ScreeningSessionID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// GetExecution retrieves an execution by id.
func (s *Postgres) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	return scanExecution(s.db.QueryRow(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE id = $1", id))
}

// UpdateExecution persists the execution's mutable fields.
func (s *Postgres) UpdateExecution(ctx context.Context, e *models.Execution) error {
	_, err := s.db.Exec(ctx,
		`UPDATE executions SET status = $1, clock_in_at = $2, clock_out_at = $3, submitted_at = $4,
		 completed_at = $5, revision_count = $6, quality_score = $7, was_late = $8, deliverables = $9,
		 payout_id = $10, screening_link_id = $11, screening_session_id = $12, updated_at = now()
		 WHERE id = $13`,
		e.Status, e.ClockInAt, e.ClockOutAt, e.SubmittedAt, e.CompletedAt, e.RevisionCount,
		e.QualityScore, e.WasLate, e.Deliverables, e.PayoutID, e.ScreeningLinkID,
		e.ScreeningSessionID, e.ID)
	return err
}

// SetExecutionScreeningLink attaches the generated screening link. The
// single-column write leaves status and timestamps alone, so it is safe to
// run outside the claim transaction.
func (s *Postgres) SetExecutionScreeningLink(ctx context.Context, id, linkID string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE executions SET screening_link_id = $1, updated_at = now() WHERE id = $2",
		linkID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var terminalStatuses = []string{
	string(models.ExecutionStatusApproved),
	string(models.ExecutionStatusFailed),
	string(models.ExecutionStatusCancelled),
}

// FindActiveExecution returns the non-terminal execution for the pair, or
// ErrNotFound.
func (s *Postgres) FindActiveExecution(ctx context.Context, workUnitID, studentID string) (*models.Execution, error) {
	return scanExecution(s.db.QueryRow(ctx,
		"SELECT "+executionColumns+` FROM executions
		 WHERE work_unit_id = $1 AND student_id = $2 AND status != ALL($3) LIMIT 1`,
		workUnitID, studentID, terminalStatuses))
}

// CountActiveExecutions counts non-terminal executions on the work unit.
func (s *Postgres) CountActiveExecutions(ctx context.Context, workUnitID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM executions WHERE work_unit_id = $1 AND status != ALL($2)",
		workUnitID, terminalStatuses).Scan(&n)
	return n, err
}

// ListPendingExecutions returns executions still awaiting assignment or
// screening on the work unit.
func (s *Postgres) ListPendingExecutions(ctx context.Context, workUnitID string) ([]*models.Execution, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+executionColumns+` FROM executions
		 WHERE work_unit_id = $1 AND status = ANY($2) ORDER BY created_at`,
		workUnitID,
		[]string{string(models.ExecutionStatusPendingReview), string(models.ExecutionStatusPendingScreening)})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// CountExecutionsSince counts executions the student created at or after the
// given instant.
func (s *Postgres) CountExecutionsSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM executions WHERE student_id = $1 AND created_at >= $2",
		studentID, since).Scan(&n)
	return n, err
}

// CreateMilestoneTemplate inserts a milestone template.
func (s *Postgres) CreateMilestoneTemplate(ctx context.Context, t *models.MilestoneTemplate) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO milestone_templates (id, work_unit_id, description, position) VALUES ($1, $2, $3, $4)",
		t.ID, t.WorkUnitID, t.Description, t.Position)
	return err
}

// ListMilestoneTemplates returns a work unit's milestone templates in order.
func (s *Postgres) ListMilestoneTemplates(ctx context.Context, workUnitID string) ([]*models.MilestoneTemplate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, work_unit_id, description, position, created_at
		 FROM milestone_templates WHERE work_unit_id = $1 ORDER BY position`, workUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*models.MilestoneTemplate
	for rows.Next() {
		var t models.MilestoneTemplate
		if err := rows.Scan(&t.ID, &t.WorkUnitID, &t.Description, &t.Position, &t.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// CreateMilestone inserts an execution-scoped milestone instance.
func (s *Postgres) CreateMilestone(ctx context.Context, m *models.TaskMilestone) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO task_milestones (id, execution_id, template_id, description, position, completed_at, evidence, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ExecutionID, m.TemplateID, m.Description, m.Position, m.CompletedAt, m.Evidence, m.Notes)
	return err
}

func scanMilestone(row pgx.Row) (*models.TaskMilestone, error) {
	var m models.TaskMilestone
	err := row.Scan(&m.ID, &m.ExecutionID, &m.TemplateID, &m.Description, &m.Position,
		&m.CompletedAt, &m.Evidence, &m.Notes, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// GetMilestone retrieves a milestone instance by id.
func (s *Postgres) GetMilestone(ctx context.Context, id string) (*models.TaskMilestone, error) {
	return scanMilestone(s.db.QueryRow(ctx,
		`SELECT id, execution_id, template_id, description, position, completed_at, evidence, notes, created_at
		 FROM task_milestones WHERE id = $1`, id))
}

// ListMilestones returns an execution's milestone instances in order.
func (s *Postgres) ListMilestones(ctx context.Context, executionID string) ([]*models.TaskMilestone, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, execution_id, template_id, description, position, completed_at, evidence, notes, created_at
		 FROM task_milestones WHERE execution_id = $1 ORDER BY position`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []*models.TaskMilestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// UpdateMilestone persists a milestone instance's completion fields.
func (s *Postgres) UpdateMilestone(ctx context.Context, m *models.TaskMilestone) error {
	_, err := s.db.Exec(ctx,
		"UPDATE task_milestones SET completed_at = $1, evidence = $2, notes = $3 WHERE id = $4",
		m.CompletedAt, m.Evidence, m.Notes, m.ID)
	return err
}

// CreateRevisionRequest appends a revision request.
func (s *Postgres) CreateRevisionRequest(ctx context.Context, r *models.RevisionRequest) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO revision_requests (id, execution_id, number, issues, deadline)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.ExecutionID, r.Number, r.Issues, r.Deadline)
	return err
}

// ListRevisionRequests returns an execution's revision requests in order.
func (s *Postgres) ListRevisionRequests(ctx context.Context, executionID string) ([]*models.RevisionRequest, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, execution_id, number, issues, deadline, created_at
		 FROM revision_requests WHERE execution_id = $1 ORDER BY number`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.RevisionRequest
	for rows.Next() {
		var r models.RevisionRequest
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.Number, &r.Issues, &r.Deadline, &r.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, &r)
	}
	return requests, rows.Err()
}

// CreatePayout inserts a payout record.
func (s *Postgres) CreatePayout(ctx context.Context, p *models.Payout) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO payouts (id, execution_id, escrow_id, amount_cents, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.ExecutionID, p.EscrowID, p.AmountCents, p.Status)
	return err
}

// CreateProofRequest inserts a proof-of-work check-in request.
func (s *Postgres) CreateProofRequest(ctx context.Context, p *models.ProofRequest) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO proof_requests (id, execution_id, due_at, status) VALUES ($1, $2, $3, $4)",
		p.ID, p.ExecutionID, p.DueAt, p.Status)
	return err
}

// ExpirePendingProofRequests expires every pending proof request on the
// execution.
func (s *Postgres) ExpirePendingProofRequests(ctx context.Context, executionID string) error {
	_, err := s.db.Exec(ctx,
		"UPDATE proof_requests SET status = $1 WHERE execution_id = $2 AND status = $3",
		models.ProofRequestStatusExpired, executionID, models.ProofRequestStatusPending)
	return err
}
