// Package catalog models the read-only hierarchy of institutions, faculties,
// departments and the programs students apply to.
package catalog

import (
	"strings"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// DefaultRequiredSubjects is used when a program does not list its own.
const DefaultRequiredSubjects = "Mathematics,English"

// Institution is a university or college.
type Institution struct {
	ID          string
	Name        string
	Location    string
	Description string
}

// Faculty groups departments within an institution. Code is unique per institution.
type Faculty struct {
	ID            string
	InstitutionID string
	Name          string
	Code          string
	Description   string
}

// Department belongs to a faculty and offers programs.
type Department struct {
	ID          string
	FacultyID   string
	Name        string
	Description string
}

// Program is an admissible course of study.
type Program struct {
	ID                shared.ProgramID
	Code              string // globally unique
	Name              string
	Description       string
	DepartmentID      string
	FacultyID         string
	InstitutionID     string
	InstitutionName   string
	MinPointsRequired int
	RequiredSubjects  string // comma-delimited
	TotalEnrollment   int
	FeeCents          int64
	StartDate         time.Time
	EndDate           time.Time
}

// Validate checks the invariants of a catalog program.
func (p *Program) Validate() error {
	if p.ID.IsEmpty() {
		return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidID, "program id is required")
	}
	if strings.TrimSpace(p.Code) == "" {
		return shared.NewDomainError("catalog", "Validate", shared.ErrEmptyValue, "program code is required")
	}
	if p.MinPointsRequired < 0 {
		return shared.ErrInvalidPoints
	}
	return nil
}

// Requirements returns the list of required subjects.
func (p *Program) Requirements() []string {
	raw := p.RequiredSubjects
	if strings.TrimSpace(raw) == "" {
		raw = DefaultRequiredSubjects
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MatchesKeyword reports whether kw occurs in the program's name or description.
func (p *Program) MatchesKeyword(kw string) bool {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.Name), kw) ||
		strings.Contains(strings.ToLower(p.Description), kw)
}

// Semester identifies an academic intake.
type Semester string

const (
	SemesterFall   Semester = "FALL"
	SemesterSpring Semester = "SPRING"
	SemesterSummer Semester = "SUMMER"
	SemesterWinter Semester = "WINTER"
)

// IsValid checks that the semester is known.
func (s Semester) IsValid() bool {
	switch s {
	case SemesterFall, SemesterSpring, SemesterSummer, SemesterWinter:
		return true
	default:
		return false
	}
}

// Label returns the display name of the semester.
func (s Semester) Label() string {
	switch s {
	case SemesterFall:
		return "Fall Semester"
	case SemesterSpring:
		return "Spring Semester"
	case SemesterSummer:
		return "Summer Semester"
	case SemesterWinter:
		return "Winter Semester"
	default:
		return string(s)
	}
}

// Deadline is an application cut-off date. InstitutionID is empty for global deadlines.
type Deadline struct {
	ID            string
	Title         string
	Description   string
	InstitutionID string
	Date          time.Time
	Semester      Semester
	IsActive      bool
}

// IsUpcoming reports whether the deadline is active and not yet past on the given day.
func (d Deadline) IsUpcoming(now time.Time) bool {
	if !d.IsActive {
		return false
	}
	y, m, day := now.UTC().Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return !d.Date.UTC().Before(today)
}
