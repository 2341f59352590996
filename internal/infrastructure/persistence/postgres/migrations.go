package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMigrationFailed wraps any failure while changing the schema.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one versioned schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// migrationLock is the advisory lock key held while a step runs, so two
// deployments starting at once don't apply the same migration twice.
const migrationLock = 0x61646d73

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrator applies the embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator for the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// locked runs fn in one transaction that holds the migration lock.
func (m *Migrator) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.conn.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := m.conn.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := m.conn.Exec(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		return fn(ctx)
	})
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies pending migrations in order, each in its own transaction,
// and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	ran := 0
	for _, mig := range m.migrations {
		mig := mig
		if mig.UpSQL == "" {
			return ran, fmt.Errorf("%w: migration %d has no up SQL", ErrMigrationFailed, mig.Version)
		}
		applied := false
		err := m.locked(ctx, func(ctx context.Context) error {
			done, err := m.applied(ctx)
			if err != nil {
				return err
			}
			if _, ok := done[mig.Version]; ok {
				return nil
			}
			if _, err := m.conn.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			if _, err := m.conn.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
				return err
			}
			applied = true
			return nil
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		if applied {
			ran++
		}
	}
	return ran, nil
}

// Rollback reverts the most recently applied migration. It does nothing when
// no migration is applied.
func (m *Migrator) Rollback(ctx context.Context) error {
	return m.locked(ctx, func(ctx context.Context) error {
		var last int
		if err := m.conn.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&last); err != nil {
			return err
		}
		if last == 0 {
			return nil
		}
		mig, ok := m.find(last)
		if !ok || mig.DownSQL == "" {
			return fmt.Errorf("%w: migration %d has no down SQL", ErrMigrationFailed, last)
		}
		if _, err := m.conn.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("%w: revert %d: %v", ErrMigrationFailed, last, err)
		}
		_, err := m.conn.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, last)
		return err
	})
}

func (m *Migrator) find(version int) (Migration, bool) {
	for _, mig := range m.migrations {
		if mig.Version == version {
			return mig, true
		}
	}
	return Migration{}, false
}

// Status lists every embedded migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := m.locked(ctx, func(ctx context.Context) error {
		done, err := m.applied(ctx)
		if err != nil {
			return err
		}
		out = markApplied(m.migrations, done)
		return nil
	})
	return out, err
}

// markApplied copies migrations and fills in the applied state.
func markApplied(migrations []Migration, applied map[int]time.Time) []Migration {
	out := make([]Migration, len(migrations))
	for i, mig := range migrations {
		if at, ok := applied[mig.Version]; ok {
			mig.IsApplied = true
			mig.AppliedAt = at
		}
		out[i] = mig
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS institutions (
    id TEXT PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    location VARCHAR(200) NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS faculties (
    id TEXT PRIMARY KEY,
    institution_id TEXT NOT NULL REFERENCES institutions(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    code VARCHAR(20) NOT NULL,
    description TEXT NOT NULL DEFAULT '',

    CONSTRAINT unique_faculty_code UNIQUE (institution_id, code)
);

CREATE TABLE IF NOT EXISTS departments (
    id TEXT PRIMARY KEY,
    faculty_id TEXT NOT NULL REFERENCES faculties(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS programs (
    id TEXT PRIMARY KEY,
    code VARCHAR(30) NOT NULL UNIQUE,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    department_id TEXT REFERENCES departments(id) ON DELETE SET NULL,
    faculty_id TEXT REFERENCES faculties(id) ON DELETE SET NULL,
    institution_id TEXT REFERENCES institutions(id) ON DELETE SET NULL,
    min_points_required INTEGER NOT NULL DEFAULT 0,
    required_subjects TEXT NOT NULL DEFAULT '',
    total_enrollment INTEGER NOT NULL DEFAULT 0,
    fee_cents BIGINT NOT NULL DEFAULT 0,
    start_date DATE,
    end_date DATE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_min_points CHECK (min_points_required >= 0)
);

CREATE INDEX IF NOT EXISTS idx_programs_faculty ON programs(faculty_id);
CREATE INDEX IF NOT EXISTS idx_programs_institution ON programs(institution_id);

CREATE TABLE IF NOT EXISTS deadlines (
    id TEXT PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    institution_id TEXT REFERENCES institutions(id) ON DELETE CASCADE,
    deadline_date TIMESTAMP WITH TIME ZONE NOT NULL,
    semester VARCHAR(10) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_semester CHECK (semester IN ('FALL', 'SPRING', 'SUMMER', 'WINTER'))
);

CREATE INDEX IF NOT EXISTS idx_deadlines_active_date ON deadlines(deadline_date) WHERE is_active;
`

const migration001Down = `
DROP TABLE IF EXISTS deadlines;
DROP TABLE IF EXISTS programs;
DROP TABLE IF EXISTS departments;
DROP TABLE IF EXISTS faculties;
DROP TABLE IF EXISTS institutions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS applicant_profiles (
    student_id TEXT PRIMARY KEY,
    exam_board VARCHAR(20) NOT NULL DEFAULT '',
    o_level_subjects INTEGER NOT NULL DEFAULT 0,
    a_level_points INTEGER,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_points CHECK (a_level_points IS NULL OR a_level_points >= 0)
);

CREATE TABLE IF NOT EXISTS applications (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    program_id TEXT NOT NULL REFERENCES programs(id),
    program_name VARCHAR(300) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'Pending',
    personal_statement TEXT NOT NULL,
    documents JSONB NOT NULL DEFAULT '[]'::jsonb,
    date_applied TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    date_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    date_status_changed TIMESTAMP WITH TIME ZONE,
    admin_notes TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT unique_student_program UNIQUE (student_id, program_id),
    CONSTRAINT valid_status CHECK (status IN ('Pending', 'Approved', 'Rejected', 'Deferred', 'Waitlisted', 'Withdrawn'))
);

CREATE INDEX IF NOT EXISTS idx_applications_student ON applications(student_id, date_applied DESC);
CREATE INDEX IF NOT EXISTS idx_applications_program ON applications(program_id, date_applied DESC);
CREATE INDEX IF NOT EXISTS idx_applications_pending ON applications(program_id) WHERE status = 'Pending';
`

const migration002Down = `
DROP TABLE IF EXISTS applications;
DROP TABLE IF EXISTS applicant_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: AUDIT AND CORRESPONDENCE
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Audit entries outlive the applications they describe: no foreign key.
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL UNIQUE,
    actor TEXT NOT NULL,
    action VARCHAR(30) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    application_id TEXT GENERATED ALWAYS AS (metadata->>'application_id') STORED,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor, seq DESC);
CREATE INDEX IF NOT EXISTS idx_audit_application ON audit_log(application_id, seq DESC);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL UNIQUE,
    application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
    sender_id TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    text TEXT NOT NULL,
    sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    is_system BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_messages_application ON messages(application_id, seq DESC);

CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL UNIQUE,
    recipient_id TEXT NOT NULL,
    type VARCHAR(30) NOT NULL,
    title VARCHAR(200) NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    application_id TEXT NOT NULL DEFAULT '',
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    read_at TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(recipient_id) WHERE NOT is_read;
`

const migration003Down = `
DROP TABLE IF EXISTS notifications;
DROP TABLE IF EXISTS messages;
DROP TABLE IF EXISTS audit_log;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_catalog",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_applications",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_audit_and_correspondence",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}
