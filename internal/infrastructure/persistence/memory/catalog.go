package memory

import (
	"context"
	"sort"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// CatalogRepository implements catalog.Repository. Seed it with AddInstitution,
// AddProgram and AddDeadline before use.
type CatalogRepository struct {
	s *Store
}

// AddInstitution stores an institution.
func (r *CatalogRepository) AddInstitution(inst catalog.Institution) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.institutions[inst.ID] = inst
}

// AddProgram stores a program after validating it. Programs keep their
// insertion order in listings.
func (r *CatalogRepository) AddProgram(p catalog.Program) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if inst, ok := r.s.institutions[p.InstitutionID]; ok && p.InstitutionName == "" {
		p.InstitutionName = inst.Name
	}
	if _, exists := r.s.programs[p.ID]; !exists {
		r.s.programOrder = append(r.s.programOrder, p.ID)
	}
	r.s.programs[p.ID] = p
	return nil
}

// AddDeadline stores a deadline.
func (r *CatalogRepository) AddDeadline(d catalog.Deadline) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deadlines = append(r.s.deadlines, d)
}

// GetProgram returns a program by ID.
func (r *CatalogRepository) GetProgram(ctx context.Context, id shared.ProgramID) (*catalog.Program, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.programs[id]
	if !ok {
		return nil, shared.ErrProgramNotFound
	}
	return &p, nil
}

// ListPrograms returns every program.
func (r *CatalogRepository) ListPrograms(ctx context.Context) ([]*catalog.Program, error) {
	return r.filter(func(*catalog.Program) bool { return true }), nil
}

// ListByFaculty returns the programs of a faculty.
func (r *CatalogRepository) ListByFaculty(ctx context.Context, facultyID string) ([]*catalog.Program, error) {
	return r.filter(func(p *catalog.Program) bool { return p.FacultyID == facultyID }), nil
}

// SearchPrograms returns programs matching keyword.
func (r *CatalogRepository) SearchPrograms(ctx context.Context, keyword string) ([]*catalog.Program, error) {
	return r.filter(func(p *catalog.Program) bool { return p.MatchesKeyword(keyword) }), nil
}

func (r *CatalogRepository) filter(match func(*catalog.Program) bool) []*catalog.Program {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*catalog.Program
	for _, id := range r.s.programOrder {
		p := r.s.programs[id]
		if match(&p) {
			out = append(out, &p)
		}
	}
	return out
}

// GetInstitution returns an institution by ID.
func (r *CatalogRepository) GetInstitution(ctx context.Context, id string) (*catalog.Institution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	inst, ok := r.s.institutions[id]
	if !ok {
		return nil, shared.ErrInstitutionNotFound
	}
	return &inst, nil
}

// UpcomingDeadlines returns active deadlines on or after now, earliest first.
func (r *CatalogRepository) UpcomingDeadlines(ctx context.Context, institutionID string, now time.Time) ([]catalog.Deadline, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []catalog.Deadline
	for _, d := range r.s.deadlines {
		if institutionID != "" && d.InstitutionID != institutionID {
			continue
		}
		if d.IsUpcoming(now) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ProfileRepository implements applicant.Repository.
type ProfileRepository struct {
	s *Store
}

// GetProfile returns a copy of a student's profile.
func (r *ProfileRepository) GetProfile(ctx context.Context, studentID shared.StudentID) (*applicant.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.st.profiles[studentID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return copyProfile(p), nil
}

// SaveProfile creates or replaces a profile.
func (r *ProfileRepository) SaveProfile(ctx context.Context, profile *applicant.Profile) error {
	if profile.StudentID.IsEmpty() {
		return shared.NewDomainError("applicant", "Save", shared.ErrInvalidID, "student id is required")
	}
	unlock := r.s.write(ctx)
	defer unlock()

	r.s.st.profiles[profile.StudentID] = *copyProfile(*profile)
	return nil
}

func copyProfile(p applicant.Profile) *applicant.Profile {
	if p.ALevelPoints != nil {
		pts := *p.ALevelPoints
		p.ALevelPoints = &pts
	}
	return &p
}
