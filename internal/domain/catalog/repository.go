package catalog

import (
	"context"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// Repository provides read access to the catalog.
type Repository interface {
	// GetProgram returns a program by ID.
	// Returns ErrProgramNotFound if it does not exist.
	GetProgram(ctx context.Context, id shared.ProgramID) (*Program, error)

	// ListPrograms returns every program in the catalog.
	ListPrograms(ctx context.Context) ([]*Program, error)

	// ListByFaculty returns the programs offered by a faculty.
	ListByFaculty(ctx context.Context, facultyID string) ([]*Program, error)

	// SearchPrograms returns programs whose name or description contains keyword.
	SearchPrograms(ctx context.Context, keyword string) ([]*Program, error)

	// GetInstitution returns an institution by ID.
	GetInstitution(ctx context.Context, id string) (*Institution, error)

	// UpcomingDeadlines returns active deadlines on or after the given time,
	// earliest first. An empty institutionID returns deadlines of all institutions.
	UpcomingDeadlines(ctx context.Context, institutionID string, now time.Time) ([]Deadline, error)
}
