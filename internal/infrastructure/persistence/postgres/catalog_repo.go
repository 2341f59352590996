package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements catalog.Repository for PostgreSQL. The Add*
// methods upsert catalog rows and are used by the seed command.
type CatalogRepository struct {
	conn *Connection
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

const programSelect = `
	SELECT p.id, p.code, p.name, p.description,
	       COALESCE(p.department_id, ''), COALESCE(p.faculty_id, ''), COALESCE(p.institution_id, ''),
	       COALESCE(i.name, ''), p.min_points_required, p.required_subjects,
	       p.total_enrollment, p.fee_cents, p.start_date, p.end_date
	FROM programs p
	LEFT JOIN institutions i ON i.id = p.institution_id`

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetProgram returns a program by ID.
func (r *CatalogRepository) GetProgram(ctx context.Context, id shared.ProgramID) (*catalog.Program, error) {
	row := r.conn.QueryRow(ctx, programSelect+` WHERE p.id = $1`, id.String())
	p, err := scanProgram(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgramNotFound
		}
		return nil, fmt.Errorf("failed to get program: %w", err)
	}
	return p, nil
}

// ListPrograms returns every program in creation order.
func (r *CatalogRepository) ListPrograms(ctx context.Context) ([]*catalog.Program, error) {
	return r.queryPrograms(ctx, programSelect+` ORDER BY p.created_at, p.id`)
}

// ListByFaculty returns the programs of a faculty.
func (r *CatalogRepository) ListByFaculty(ctx context.Context, facultyID string) ([]*catalog.Program, error) {
	return r.queryPrograms(ctx, programSelect+` WHERE p.faculty_id = $1 ORDER BY p.created_at, p.id`, facultyID)
}

// SearchPrograms returns programs whose name or description contains keyword,
// case-insensitively. An empty keyword matches nothing.
func (r *CatalogRepository) SearchPrograms(ctx context.Context, keyword string) ([]*catalog.Program, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(keyword) + "%"
	return r.queryPrograms(ctx,
		programSelect+` WHERE p.name ILIKE $1 OR p.description ILIKE $1 ORDER BY p.created_at, p.id`,
		pattern)
}

func (r *CatalogRepository) queryPrograms(ctx context.Context, query string, args ...interface{}) ([]*catalog.Program, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	defer rows.Close()

	var programs []*catalog.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// GetInstitution returns an institution by ID.
func (r *CatalogRepository) GetInstitution(ctx context.Context, id string) (*catalog.Institution, error) {
	var inst catalog.Institution
	err := r.conn.QueryRow(ctx,
		`SELECT id, name, location, description FROM institutions WHERE id = $1`, id,
	).Scan(&inst.ID, &inst.Name, &inst.Location, &inst.Description)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrInstitutionNotFound
		}
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return &inst, nil
}

// UpcomingDeadlines returns active deadlines dated today or later, earliest first.
func (r *CatalogRepository) UpcomingDeadlines(ctx context.Context, institutionID string, now time.Time) ([]catalog.Deadline, error) {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	rows, err := r.conn.Query(ctx, `
		SELECT id, title, description, COALESCE(institution_id, ''), deadline_date, semester, is_active
		FROM deadlines
		WHERE is_active AND deadline_date >= $1 AND ($2 = '' OR institution_id = $2)
		ORDER BY deadline_date, id
	`, today, institutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deadlines: %w", err)
	}
	defer rows.Close()

	var deadlines []catalog.Deadline
	for rows.Next() {
		var (
			dl       catalog.Deadline
			semester string
		)
		if err := rows.Scan(&dl.ID, &dl.Title, &dl.Description, &dl.InstitutionID, &dl.Date, &semester, &dl.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan deadline: %w", err)
		}
		dl.Date = dl.Date.UTC()
		dl.Semester = catalog.Semester(semester)
		deadlines = append(deadlines, dl)
	}
	return deadlines, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeding
// ─────────────────────────────────────────────────────────────────────────────

// AddInstitution upserts an institution.
func (r *CatalogRepository) AddInstitution(ctx context.Context, inst catalog.Institution) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO institutions (id, name, location, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, location = EXCLUDED.location, description = EXCLUDED.description
	`, inst.ID, inst.Name, inst.Location, inst.Description)
	if err != nil {
		return fmt.Errorf("failed to upsert institution %s: %w", inst.ID, err)
	}
	return nil
}

// AddFaculty upserts a faculty.
func (r *CatalogRepository) AddFaculty(ctx context.Context, f catalog.Faculty) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO faculties (id, institution_id, name, code, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			institution_id = EXCLUDED.institution_id, name = EXCLUDED.name,
			code = EXCLUDED.code, description = EXCLUDED.description
	`, f.ID, f.InstitutionID, f.Name, f.Code, f.Description)
	if err != nil {
		return fmt.Errorf("failed to upsert faculty %s: %w", f.ID, err)
	}
	return nil
}

// AddDepartment upserts a department.
func (r *CatalogRepository) AddDepartment(ctx context.Context, d catalog.Department) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO departments (id, faculty_id, name, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			faculty_id = EXCLUDED.faculty_id, name = EXCLUDED.name, description = EXCLUDED.description
	`, d.ID, d.FacultyID, d.Name, d.Description)
	if err != nil {
		return fmt.Errorf("failed to upsert department %s: %w", d.ID, err)
	}
	return nil
}

// AddProgram validates and upserts a program.
func (r *CatalogRepository) AddProgram(ctx context.Context, p catalog.Program) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO programs (
			id, code, name, description, department_id, faculty_id, institution_id,
			min_points_required, required_subjects, total_enrollment, fee_cents, start_date, end_date
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, name = EXCLUDED.name, description = EXCLUDED.description,
			department_id = EXCLUDED.department_id, faculty_id = EXCLUDED.faculty_id,
			institution_id = EXCLUDED.institution_id, min_points_required = EXCLUDED.min_points_required,
			required_subjects = EXCLUDED.required_subjects, total_enrollment = EXCLUDED.total_enrollment,
			fee_cents = EXCLUDED.fee_cents, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date
	`,
		p.ID.String(), p.Code, p.Name, p.Description,
		p.DepartmentID, p.FacultyID, p.InstitutionID,
		p.MinPointsRequired, p.RequiredSubjects, p.TotalEnrollment, p.FeeCents,
		nullDate(p.StartDate), nullDate(p.EndDate),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert program %s: %w", p.ID, err)
	}
	return nil
}

// AddDeadline upserts a deadline.
func (r *CatalogRepository) AddDeadline(ctx context.Context, d catalog.Deadline) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO deadlines (id, title, description, institution_id, deadline_date, semester, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description,
			institution_id = EXCLUDED.institution_id, deadline_date = EXCLUDED.deadline_date,
			semester = EXCLUDED.semester, is_active = EXCLUDED.is_active
	`, d.ID, d.Title, d.Description, d.InstitutionID, d.Date.UTC(), string(d.Semester), d.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert deadline %s: %w", d.ID, err)
	}
	return nil
}

func scanProgram(row pgx.Row) (*catalog.Program, error) {
	var (
		p          catalog.Program
		id         string
		start, end *time.Time
	)
	err := row.Scan(
		&id, &p.Code, &p.Name, &p.Description,
		&p.DepartmentID, &p.FacultyID, &p.InstitutionID,
		&p.InstitutionName, &p.MinPointsRequired, &p.RequiredSubjects,
		&p.TotalEnrollment, &p.FeeCents, &start, &end,
	)
	if err != nil {
		return nil, err
	}
	p.ID = shared.ProgramID(id)
	if start != nil {
		p.StartDate = start.UTC()
	}
	if end != nil {
		p.EndDate = end.UTC()
	}
	return &p, nil
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements applicant.Repository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

var _ applicant.Repository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// GetProfile returns the profile of a student.
func (r *ProfileRepository) GetProfile(ctx context.Context, studentID shared.StudentID) (*applicant.Profile, error) {
	var (
		p     applicant.Profile
		board string
	)
	err := r.conn.QueryRow(ctx, `
		SELECT exam_board, o_level_subjects, a_level_points, updated_at
		FROM applicant_profiles WHERE student_id = $1
	`, studentID.String()).Scan(&board, &p.OLevelSubjects, &p.ALevelPoints, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.StudentID = studentID
	p.ExamBoard = applicant.ExamBoard(board)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// SaveProfile creates or replaces a profile.
func (r *ProfileRepository) SaveProfile(ctx context.Context, profile *applicant.Profile) error {
	if profile.StudentID.IsEmpty() {
		return shared.NewDomainError("applicant", "Save", shared.ErrInvalidID, "student id is required")
	}
	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO applicant_profiles (student_id, exam_board, o_level_subjects, a_level_points, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			exam_board = EXCLUDED.exam_board, o_level_subjects = EXCLUDED.o_level_subjects,
			a_level_points = EXCLUDED.a_level_points, updated_at = EXCLUDED.updated_at
	`, profile.StudentID.String(), string(profile.ExamBoard), profile.OLevelSubjects, profile.ALevelPoints, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
