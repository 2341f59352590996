package application

import (
	"context"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for applications.
type Repository interface {
	// Create stores a new application.
	// Returns ErrDuplicateApplication if the (student, program) pair already exists.
	Create(ctx context.Context, app *Application) error

	// GetByID returns an application by ID.
	// Returns ErrApplicationNotFound if it does not exist.
	GetByID(ctx context.Context, id shared.ApplicationID) (*Application, error)

	// GetForUpdate returns an application and locks it for the surrounding
	// transaction. Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id shared.ApplicationID) (*Application, error)

	// Save persists changes if the stored version equals app.Version, then
	// increments app.Version. Returns ErrVersionConflict otherwise.
	Save(ctx context.Context, app *Application) error

	// Delete removes an application.
	// Returns ErrApplicationNotFound if it does not exist.
	Delete(ctx context.Context, id shared.ApplicationID) error

	// ExistsForStudentProgram reports whether the student already applied to the program.
	ExistsForStudentProgram(ctx context.Context, studentID shared.StudentID, programID shared.ProgramID) (bool, error)

	// ListByStudent returns a student's applications, newest first.
	ListByStudent(ctx context.Context, studentID shared.StudentID, opts ListOptions) ([]*Application, error)

	// ListByProgram returns applications submitted to a program, newest first.
	ListByProgram(ctx context.Context, programID shared.ProgramID, opts ListOptions) ([]*Application, error)
}

// ReferencePoolSource provides the A-level points of past applicants to a program.
// Applicants without recorded points are excluded from the pool.
type ReferencePoolSource interface {
	LoadReferencePool(ctx context.Context, programID shared.ProgramID) ([]int, error)
}

// Transactor runs fn inside a single atomic unit of work. Repositories reached
// through the ctx passed to fn participate in that unit; any error rolls it back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ListOptions contains pagination and filtering parameters.
type ListOptions struct {
	// Status filters by status when non-empty.
	Status Status

	// Offset - pagination offset.
	Offset int

	// Limit - maximum number of records.
	Limit int
}

// DefaultListOptions returns default list parameters.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Offset: 0,
		Limit:  50,
	}
}
