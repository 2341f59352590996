package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationRepository implements application.Repository and
// application.ReferencePoolSource for PostgreSQL.
type ApplicationRepository struct {
	conn *Connection
}

var (
	_ application.Repository          = (*ApplicationRepository)(nil)
	_ application.ReferencePoolSource = (*ApplicationRepository)(nil)
)

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(conn *Connection) *ApplicationRepository {
	return &ApplicationRepository{conn: conn}
}

const applicationColumns = `
	id, student_id, program_id, program_name, status, personal_statement,
	documents, date_applied, date_updated, date_status_changed, admin_notes, version`

// documentRow is the JSONB shape of an attached document.
type documentRow struct {
	ID         string    `json:"id"`
	FileRef    string    `json:"file_ref"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *application.Application) error {
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	docs, err := encodeDocuments(app.Documents)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		app.ID.String(),
		app.StudentID.String(),
		app.ProgramID.String(),
		app.ProgramName,
		app.Status.String(),
		app.PersonalStatement,
		docs,
		app.DateApplied,
		app.DateUpdated,
		app.DateStatusChanged,
		app.AdminNotes,
		app.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			if constraintName(err) == "unique_student_program" {
				return shared.ErrDuplicateApplication
			}
			return shared.NewDomainError("application", "Create", shared.ErrAlreadyExists, "application id already exists")
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrProgramNotFound
		}
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

// GetByID returns an application by ID.
func (r *ApplicationRepository) GetByID(ctx context.Context, id shared.ApplicationID) (*application.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	return r.scanApplication(r.conn.QueryRow(ctx, query, id.String()))
}

// GetForUpdate returns an application and holds a row lock until the
// surrounding transaction ends.
func (r *ApplicationRepository) GetForUpdate(ctx context.Context, id shared.ApplicationID) (*application.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 FOR UPDATE`
	return r.scanApplication(r.conn.QueryRow(ctx, query, id.String()))
}

// Save writes the application if the stored version still equals app.Version.
func (r *ApplicationRepository) Save(ctx context.Context, app *application.Application) error {
	query := `
		UPDATE applications SET
			program_name = $1,
			status = $2,
			personal_statement = $3,
			documents = $4,
			date_updated = $5,
			date_status_changed = $6,
			admin_notes = $7,
			version = version + 1
		WHERE id = $8 AND version = $9
	`

	docs, err := encodeDocuments(app.Documents)
	if err != nil {
		return err
	}

	result, err := r.conn.Exec(ctx, query,
		app.ProgramName,
		app.Status.String(),
		app.PersonalStatement,
		docs,
		app.DateUpdated,
		app.DateStatusChanged,
		app.AdminNotes,
		app.ID.String(),
		app.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.conn.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM applications WHERE id = $1)`, app.ID.String(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check application: %w", err)
		}
		if !exists {
			return shared.ErrApplicationNotFound
		}
		return shared.ErrVersionConflict
	}

	app.Version++
	return nil
}

// Delete removes an application.
func (r *ApplicationRepository) Delete(ctx context.Context, id shared.ApplicationID) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM applications WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrApplicationNotFound
	}

	return nil
}

// ExistsForStudentProgram reports whether the pair already has an application.
func (r *ApplicationRepository) ExistsForStudentProgram(ctx context.Context, studentID shared.StudentID, programID shared.ProgramID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM applications WHERE student_id = $1 AND program_id = $2)`,
		studentID.String(), programID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check application: %w", err)
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Listings
// ─────────────────────────────────────────────────────────────────────────────

// ListByStudent returns a student's applications, newest first.
func (r *ApplicationRepository) ListByStudent(ctx context.Context, studentID shared.StudentID, opts application.ListOptions) ([]*application.Application, error) {
	return r.list(ctx, "student_id", studentID.String(), opts)
}

// ListByProgram returns the applications to a program, newest first.
func (r *ApplicationRepository) ListByProgram(ctx context.Context, programID shared.ProgramID, opts application.ListOptions) ([]*application.Application, error) {
	return r.list(ctx, "program_id", programID.String(), opts)
}

// list is only called with a fixed column name.
func (r *ApplicationRepository) list(ctx context.Context, column, value string, opts application.ListOptions) ([]*application.Application, error) {
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM applications
		WHERE %s = $1 AND ($2 = '' OR status = $2)
		ORDER BY date_applied DESC, id DESC
		LIMIT $3 OFFSET $4
	`, applicationColumns, column)

	rows, err := r.conn.Query(ctx, query, value, opts.Status.String(), nullLimit(opts.Limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*application.Application
	for rows.Next() {
		app, err := r.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

// LoadReferencePool returns the points of every applicant to the program
// whose profile carries points, newest application first.
func (r *ApplicationRepository) LoadReferencePool(ctx context.Context, programID shared.ProgramID) ([]int, error) {
	query := `
		SELECT p.a_level_points
		FROM applications a
		JOIN applicant_profiles p ON p.student_id = a.student_id
		WHERE a.program_id = $1 AND p.a_level_points IS NOT NULL
		ORDER BY a.date_applied DESC, a.id DESC
	`

	rows, err := r.conn.Query(ctx, query, programID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load reference pool: %w", err)
	}

	pool, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("failed to scan reference pool: %w", err)
	}
	return pool, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *ApplicationRepository) scanApplication(row pgx.Row) (*application.Application, error) {
	var (
		app                              application.Application
		id, studentID, programID, status string
		docs                             []byte
	)

	err := row.Scan(
		&id,
		&studentID,
		&programID,
		&app.ProgramName,
		&status,
		&app.PersonalStatement,
		&docs,
		&app.DateApplied,
		&app.DateUpdated,
		&app.DateStatusChanged,
		&app.AdminNotes,
		&app.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app.ID = shared.ApplicationID(id)
	app.StudentID = shared.StudentID(studentID)
	app.ProgramID = shared.ProgramID(programID)
	app.Status = application.Status(status)
	app.DateApplied = app.DateApplied.UTC()
	app.DateUpdated = app.DateUpdated.UTC()
	if app.DateStatusChanged != nil {
		t := app.DateStatusChanged.UTC()
		app.DateStatusChanged = &t
	}

	if app.Documents, err = decodeDocuments(docs); err != nil {
		return nil, err
	}

	return &app, nil
}

func encodeDocuments(docs []application.Document) ([]byte, error) {
	rows := make([]documentRow, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, documentRow{ID: d.ID, FileRef: d.FileRef, UploadedAt: d.UploadedAt})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal documents: %w", err)
	}
	return data, nil
}

func decodeDocuments(data []byte) ([]application.Document, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []documentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal documents: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	docs := make([]application.Document, 0, len(rows))
	for _, d := range rows {
		docs = append(docs, application.Document{ID: d.ID, FileRef: d.FileRef, UploadedAt: d.UploadedAt.UTC()})
	}
	return docs, nil
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
