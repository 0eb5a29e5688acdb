package repository

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS companies (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS students (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	tier TEXT NOT NULL,
	tasks_completed INT NOT NULL DEFAULT 0,
	avg_quality DOUBLE PRECISION NOT NULL DEFAULT 0,
	on_time_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_exp INT NOT NULL DEFAULT 0,
	failure_count INT NOT NULL DEFAULT 0,
	last_failure_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS work_units (
	id UUID PRIMARY KEY,
	company_id UUID NOT NULL REFERENCES companies(id),
	title TEXT NOT NULL,
	description TEXT,
	price_cents BIGINT NOT NULL,
	deadline_seconds BIGINT NOT NULL,
	min_tier TEXT NOT NULL,
	complexity_score INT NOT NULL CHECK (complexity_score BETWEEN 1 AND 5),
	revision_limit INT NOT NULL,
	assignment_mode TEXT NOT NULL,
	screening_template_id TEXT,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS escrows (
	id UUID PRIMARY KEY,
	work_unit_id UUID NOT NULL UNIQUE REFERENCES work_units(id),
	gross_cents BIGINT NOT NULL,
	fee_cents BIGINT NOT NULL,
	net_cents BIGINT NOT NULL,
	status TEXT NOT NULL,
	payment_ref TEXT,
	funded_at TIMESTAMPTZ,
	closed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS executions (
	id UUID PRIMARY KEY,
	work_unit_id UUID NOT NULL REFERENCES work_units(id),
	student_id UUID NOT NULL REFERENCES students(id),
	status TEXT NOT NULL,
	deadline TIMESTAMPTZ NOT NULL,
	clock_in_at TIMESTAMPTZ,
	clock_out_at TIMESTAMPTZ,
	submitted_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	revision_count INT NOT NULL DEFAULT 0,
	quality_score INT,
	was_late BOOLEAN NOT NULL DEFAULT FALSE,
	deliverables TEXT[],
	payout_id UUID,
	screening_link_id TEXT,
	screening_session_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS executions_work_unit_idx ON executions (work_unit_id);
CREATE INDEX IF NOT EXISTS executions_student_idx ON executions (student_id, created_at);

CREATE TABLE IF NOT EXISTS milestone_templates (
	id UUID PRIMARY KEY,
	work_unit_id UUID NOT NULL REFERENCES work_units(id),
	description TEXT NOT NULL,
	position INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS task_milestones (
	id UUID PRIMARY KEY,
	execution_id UUID NOT NULL REFERENCES executions(id),
	template_id UUID,
	description TEXT NOT NULL,
	position INT NOT NULL,
	completed_at TIMESTAMPTZ,
	evidence TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS task_milestones_execution_idx ON task_milestones (execution_id);

CREATE TABLE IF NOT EXISTS revision_requests (
	id UUID PRIMARY KEY,
	execution_id UUID NOT NULL REFERENCES executions(id),
	number INT NOT NULL,
	issues TEXT[] NOT NULL,
	deadline TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (execution_id, number)
);

CREATE TABLE IF NOT EXISTS payouts (
	id UUID PRIMARY KEY,
	execution_id UUID NOT NULL REFERENCES executions(id),
	escrow_id UUID NOT NULL REFERENCES escrows(id),
	amount_cents BIGINT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proof_requests (
	id UUID PRIMARY KEY,
	execution_id UUID NOT NULL REFERENCES executions(id),
	due_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the schema if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}
