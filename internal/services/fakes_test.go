package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"
)

// fakeStore is an in-memory Store. InTx snapshots all tables and restores
// them when fn fails, mirroring transactional rollback closely enough for
// state-machine tests.
type fakeStore struct {
	mu         sync.Mutex
	companies  map[string]models.Company
	students   map[string]models.Student
	workUnits  map[string]models.WorkUnit
	escrows    map[string]models.Escrow // keyed by work unit id
	executions map[string]models.Execution
	templates  map[string]models.MilestoneTemplate
	milestones map[string]models.TaskMilestone
	revisions  map[string]models.RevisionRequest
	payouts    map[string]models.Payout
	proofs     map[string]models.ProofRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies:  map[string]models.Company{},
		students:   map[string]models.Student{},
		workUnits:  map[string]models.WorkUnit{},
		escrows:    map[string]models.Escrow{},
		executions: map[string]models.Execution{},
		templates:  map[string]models.MilestoneTemplate{},
		milestones: map[string]models.TaskMilestone{},
		revisions:  map[string]models.RevisionRequest{},
		payouts:    map[string]models.Payout{},
		proofs:     map[string]models.ProofRequest{},
	}
}

func snapshot[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	companies, students := snapshot(f.companies), snapshot(f.students)
	workUnits, escrows := snapshot(f.workUnits), snapshot(f.escrows)
	executions, templates := snapshot(f.executions), snapshot(f.templates)
	milestones, revisions := snapshot(f.milestones), snapshot(f.revisions)
	payouts, proofs := snapshot(f.payouts), snapshot(f.proofs)

	if err := fn(unlockedStore{f}); err != nil {
		f.companies, f.students = companies, students
		f.workUnits, f.escrows = workUnits, escrows
		f.executions, f.templates = executions, templates
		f.milestones, f.revisions = milestones, revisions
		f.payouts, f.proofs = payouts, proofs
		return err
	}
	return nil
}

// unlockedStore runs inside InTx, which already holds the lock.
type unlockedStore struct{ f *fakeStore }

func (u unlockedStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	return errors.New("nested transaction")
}

// The locked entry points delegate to the same unexported logic the
// transactional wrapper uses.

func (f *fakeStore) CreateCompany(ctx context.Context, c *models.Company) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateCompany(ctx, c)
}
func (f *fakeStore) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.GetCompany(ctx, id)
}
func (f *fakeStore) CreateStudent(ctx context.Context, s *models.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateStudent(ctx, s)
}
func (f *fakeStore) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.GetStudent(ctx, id)
}
func (f *fakeStore) UpdateStudent(ctx context.Context, s *models.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.UpdateStudent(ctx, s)
}
func (f *fakeStore) CreateWorkUnit(ctx context.Context, w *models.WorkUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateWorkUnit(ctx, w)
}
func (f *fakeStore) GetWorkUnit(ctx context.Context, id string) (*models.WorkUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.GetWorkUnit(ctx, id)
}
func (f *fakeStore) SetWorkUnitStatus(ctx context.Context, id string, status models.WorkUnitStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.SetWorkUnitStatus(ctx, id, status)
}
func (f *fakeStore) ListOpenWorkUnits(ctx context.Context) ([]*models.WorkUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.ListOpenWorkUnits(ctx)
}
func (f *fakeStore) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateEscrow(ctx, e)
}
func (f *fakeStore) GetEscrowByWorkUnit(ctx context.Context, workUnitID string) (*models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.GetEscrowByWorkUnit(ctx, workUnitID)
}
func (f *fakeStore) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.UpdateEscrow(ctx, e)
}
func (f *fakeStore) CreateExecution(ctx context.Context, e *models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateExecution(ctx, e)
}
func (f *fakeStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.GetExecution(ctx, id)
}
func (f *fakeStore) UpdateExecution(ctx context.Context, e *models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.UpdateExecution(ctx, e)
}
func (f *fakeStore) SetExecutionScreeningLink(ctx context.Context, id, linkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.SetExecutionScreeningLink(ctx, id, linkID)
}
func (f *fakeStore) FindActiveExecution(ctx context.Context, workUnitID, studentID string) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.FindActiveExecution(ctx, workUnitID, studentID)
}
func (f *fakeStore) CountActiveExecutions(ctx context.Context, workUnitID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CountActiveExecutions(ctx, workUnitID)
}
func (f *fakeStore) ListPendingExecutions(ctx context.Context, workUnitID string) ([]*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.ListPendingExecutions(ctx, workUnitID)
}
func (f *fakeStore) CountExecutionsSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CountExecutionsSince(ctx, studentID, since)
}
func (f *fakeStore) CreateMilestoneTemplate(ctx context.Context, t *models.MilestoneTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateMilestoneTemplate(ctx, t)
}
func (f *fakeStore) ListMilestoneTemplates(ctx context.Context, workUnitID string) ([]*models.MilestoneTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.ListMilestoneTemplates(ctx, workUnitID)
}
func (f *fakeStore) CreateMilestone(ctx context.Context, m *models.TaskMilestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateMilestone(ctx, m)
}
func (f *fakeStore) GetMilestone(ctx context.Context, id string) (*models.TaskMilestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.GetMilestone(ctx, id)
}
func (f *fakeStore) ListMilestones(ctx context.Context, executionID string) ([]*models.TaskMilestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.ListMilestones(ctx, executionID)
}
func (f *fakeStore) UpdateMilestone(ctx context.Context, m *models.TaskMilestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.UpdateMilestone(ctx, m)
}
func (f *fakeStore) CreateRevisionRequest(ctx context.Context, r *models.RevisionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateRevisionRequest(ctx, r)
}
func (f *fakeStore) ListRevisionRequests(ctx context.Context, executionID string) ([]*models.RevisionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.ListRevisionRequests(ctx, executionID)
}
func (f *fakeStore) CreatePayout(ctx context.Context, p *models.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreatePayout(ctx, p)
}
func (f *fakeStore) CreateProofRequest(ctx context.Context, p *models.ProofRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.CreateProofRequest(ctx, p)
}
func (f *fakeStore) ExpirePendingProofRequests(ctx context.Context, executionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unlockedStore{f}.ExpirePendingProofRequests(ctx, executionID)
}

func (u unlockedStore) CreateCompany(_ context.Context, c *models.Company) error {
	u.f.companies[c.ID] = *c
	return nil
}

func (u unlockedStore) GetCompany(_ context.Context, id string) (*models.Company, error) {
	c, ok := u.f.companies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (u unlockedStore) CreateStudent(_ context.Context, s *models.Student) error {
	u.f.students[s.ID] = *s
	return nil
}

func (u unlockedStore) GetStudent(_ context.Context, id string) (*models.Student, error) {
	s, ok := u.f.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (u unlockedStore) UpdateStudent(_ context.Context, s *models.Student) error {
	u.f.students[s.ID] = *s
	return nil
}

func (u unlockedStore) CreateWorkUnit(_ context.Context, w *models.WorkUnit) error {
	u.f.workUnits[w.ID] = *w
	return nil
}

func (u unlockedStore) GetWorkUnit(_ context.Context, id string) (*models.WorkUnit, error) {
	w, ok := u.f.workUnits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (u unlockedStore) SetWorkUnitStatus(_ context.Context, id string, status models.WorkUnitStatus) error {
	w, ok := u.f.workUnits[id]
	if !ok {
		return repository.ErrNotFound
	}
	w.Status = status
	u.f.workUnits[id] = w
	return nil
}

func (u unlockedStore) ListOpenWorkUnits(_ context.Context) ([]*models.WorkUnit, error) {
	var out []*models.WorkUnit
	for id := range u.f.workUnits {
		w := u.f.workUnits[id]
		if w.Status == models.WorkUnitStatusActive {
			out = append(out, &w)
		}
	}
	return out, nil
}

func (u unlockedStore) CreateEscrow(_ context.Context, e *models.Escrow) error {
	u.f.escrows[e.WorkUnitID] = *e
	return nil
}

func (u unlockedStore) GetEscrowByWorkUnit(_ context.Context, workUnitID string) (*models.Escrow, error) {
	e, ok := u.f.escrows[workUnitID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (u unlockedStore) UpdateEscrow(_ context.Context, e *models.Escrow) error {
	u.f.escrows[e.WorkUnitID] = *e
	return nil
}

func (u unlockedStore) CreateExecution(_ context.Context, e *models.Execution) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	u.f.executions[e.ID] = *e
	return nil
}

func (u unlockedStore) GetExecution(_ context.Context, id string) (*models.Execution, error) {
	e, ok := u.f.executions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (u unlockedStore) UpdateExecution(_ context.Context, e *models.Execution) error {
	u.f.executions[e.ID] = *e
	return nil
}

func (u unlockedStore) SetExecutionScreeningLink(_ context.Context, id, linkID string) error {
	e, ok := u.f.executions[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.ScreeningLinkID = &linkID
	u.f.executions[id] = e
	return nil
}

func (u unlockedStore) FindActiveExecution(_ context.Context, workUnitID, studentID string) (*models.Execution, error) {
	for id := range u.f.executions {
		e := u.f.executions[id]
		if e.WorkUnitID == workUnitID && e.StudentID == studentID && !e.Status.Terminal() {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (u unlockedStore) CountActiveExecutions(_ context.Context, workUnitID string) (int, error) {
	n := 0
	for _, e := range u.f.executions {
		if e.WorkUnitID == workUnitID && !e.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (u unlockedStore) ListPendingExecutions(_ context.Context, workUnitID string) ([]*models.Execution, error) {
	var out []*models.Execution
	for id := range u.f.executions {
		e := u.f.executions[id]
		if e.WorkUnitID != workUnitID {
			continue
		}
		if e.Status == models.ExecutionStatusPendingReview || e.Status == models.ExecutionStatusPendingScreening {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (u unlockedStore) CountExecutionsSince(_ context.Context, studentID string, since time.Time) (int, error) {
	n := 0
	for _, e := range u.f.executions {
		if e.StudentID == studentID && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (u unlockedStore) CreateMilestoneTemplate(_ context.Context, t *models.MilestoneTemplate) error {
	u.f.templates[t.ID] = *t
	return nil
}

func (u unlockedStore) ListMilestoneTemplates(_ context.Context, workUnitID string) ([]*models.MilestoneTemplate, error) {
	var out []*models.MilestoneTemplate
	for id := range u.f.templates {
		t := u.f.templates[id]
		if t.WorkUnitID == workUnitID {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (u unlockedStore) CreateMilestone(_ context.Context, m *models.TaskMilestone) error {
	u.f.milestones[m.ID] = *m
	return nil
}

func (u unlockedStore) GetMilestone(_ context.Context, id string) (*models.TaskMilestone, error) {
	m, ok := u.f.milestones[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (u unlockedStore) ListMilestones(_ context.Context, executionID string) ([]*models.TaskMilestone, error) {
	var out []*models.TaskMilestone
	for id := range u.f.milestones {
		m := u.f.milestones[id]
		if m.ExecutionID == executionID {
			out = append(out, &m)
		}
	}
	return out, nil
}

func (u unlockedStore) UpdateMilestone(_ context.Context, m *models.TaskMilestone) error {
	u.f.milestones[m.ID] = *m
	return nil
}

func (u unlockedStore) CreateRevisionRequest(_ context.Context, r *models.RevisionRequest) error {
	u.f.revisions[r.ID] = *r
	return nil
}

func (u unlockedStore) ListRevisionRequests(_ context.Context, executionID string) ([]*models.RevisionRequest, error) {
	var out []*models.RevisionRequest
	for id := range u.f.revisions {
		r := u.f.revisions[id]
		if r.ExecutionID == executionID {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (u unlockedStore) CreatePayout(_ context.Context, p *models.Payout) error {
	u.f.payouts[p.ID] = *p
	return nil
}

func (u unlockedStore) CreateProofRequest(_ context.Context, p *models.ProofRequest) error {
	u.f.proofs[p.ID] = *p
	return nil
}

func (u unlockedStore) ExpirePendingProofRequests(_ context.Context, executionID string) error {
	for id, p := range u.f.proofs {
		if p.ExecutionID == executionID && p.Status == models.ProofRequestStatusPending {
			p.Status = models.ProofRequestStatusExpired
			u.f.proofs[id] = p
		}
	}
	return nil
}

// fakePayments records payment calls and can be told to fail.
type fakePayments struct {
	mu       sync.Mutex
	releases []string
	refunds  []string
	fail     bool
}

func (p *fakePayments) FundEscrow(_ context.Context, escrowID string, _ int64) (string, error) {
	if p.fail {
		return "", errors.New("provider down")
	}
	return "charge-" + escrowID, nil
}

func (p *fakePayments) ReleaseToPayout(_ context.Context, escrowID string, _ int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("provider down")
	}
	p.releases = append(p.releases, escrowID)
	return nil
}

func (p *fakePayments) RefundEscrow(_ context.Context, escrowID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("provider down")
	}
	p.refunds = append(p.refunds, escrowID)
	return nil
}

// fakeScreening serves a fixed completed-session answer. linkDelay lets
// tests hold the post-commit link generation open while they transition
// the execution.
type fakeScreening struct {
	completedSession string
	linkDelay        time.Duration
}

func (s *fakeScreening) FindCompletedSession(context.Context, string) (string, error) {
	return s.completedSession, nil
}

func (s *fakeScreening) CreateSingleUseLink(context.Context, string) (string, error) {
	if s.linkDelay > 0 {
		time.Sleep(s.linkDelay)
	}
	return "link-1", nil
}

// fakeNotifier records events per user.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, userID, event string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, userID+":"+event)
	return nil
}

// stubFormula awards fixed experience and never upgrades unless told to.
type stubFormula struct {
	exp     int
	upgrade *models.Tier
}

func (s stubFormula) CalculateExperience(int, int, bool, int) int { return s.exp }

func (s stubFormula) CheckTierUpgrade(models.StudentStats) *models.Tier { return s.upgrade }

// testEnv wires the services against the in-memory fakes.
type testEnv struct {
	store     *fakeStore
	payments  *fakePayments
	screening *fakeScreening
	notifier  *fakeNotifier
	ledger    *EscrowLedger
	assign    *AssignmentService
	lifecycle *LifecycleService
}

func newTestEnv() *testEnv {
	e := &testEnv{
		store:     newFakeStore(),
		payments:  &fakePayments{},
		screening: &fakeScreening{},
		notifier:  &fakeNotifier{},
	}
	logger := logging.NewLogger()
	e.ledger = NewEscrowLedger(e.payments)
	e.assign = NewAssignmentService(e.store, e.screening, e.notifier, logger, nil)
	e.lifecycle = NewLifecycleService(e.store, e.ledger, e.screening, StaticFormula{}, e.notifier, logger, nil)
	return e
}

// withFormula swaps the lifecycle formula, keeping the rest of the wiring.
func (e *testEnv) withFormula(f FormulaProvider) {
	e.lifecycle = NewLifecycleService(e.store, e.ledger, e.screening, f, e.notifier, logging.NewLogger(), nil)
}

func (e *testEnv) seedCompany(id string) {
	_ = e.store.CreateCompany(context.Background(), &models.Company{ID: id, Name: id})
}

func (e *testEnv) seedStudent(id string, tier models.Tier) {
	_ = e.store.CreateStudent(context.Background(), &models.Student{ID: id, Name: id, Tier: tier})
}

func (e *testEnv) seedWorkUnit(w models.WorkUnit) *models.WorkUnit {
	if w.Status == "" {
		w.Status = models.WorkUnitStatusActive
	}
	if w.Mode == "" {
		w.Mode = models.AssignmentModeAuto
	}
	if w.CompanyID == "" {
		w.CompanyID = "acme"
	}
	if w.DeadlineSeconds == 0 {
		w.DeadlineSeconds = 3600
	}
	if w.ComplexityScore == 0 {
		w.ComplexityScore = 1
	}
	if w.MinTier == "" {
		w.MinTier = models.TierNovice
	}
	_ = e.store.CreateWorkUnit(context.Background(), &w)
	return &w
}

func (e *testEnv) fundEscrow(workUnitID string, gross, fee int64) *models.Escrow {
	now := time.Now()
	esc := &models.Escrow{
		ID:         "esc-" + workUnitID,
		WorkUnitID: workUnitID,
		GrossCents: gross,
		FeeCents:   fee,
		NetCents:   gross - fee,
		Status:     models.EscrowStatusFunded,
		FundedAt:   &now,
	}
	_ = e.store.CreateEscrow(context.Background(), esc)
	return esc
}
