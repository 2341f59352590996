package memory

import (
	"context"
	"sort"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ApplicationRepository implements application.Repository and
// application.ReferencePoolSource.
type ApplicationRepository struct {
	s *Store
}

// Create stores a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *application.Application) error {
	unlock := r.s.write(ctx)
	defer unlock()

	if _, ok := r.s.st.applications[app.ID]; ok {
		return shared.NewDomainError("application", "Create", shared.ErrAlreadyExists, "application id already exists")
	}
	for _, existing := range r.s.st.applications {
		if existing.StudentID == app.StudentID && existing.ProgramID == app.ProgramID {
			return shared.ErrDuplicateApplication
		}
	}
	r.s.st.applications[app.ID] = app.Clone()
	return nil
}

// GetByID returns a copy of an application.
func (r *ApplicationRepository) GetByID(ctx context.Context, id shared.ApplicationID) (*application.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	app, ok := r.s.st.applications[id]
	if !ok {
		return nil, shared.ErrApplicationNotFound
	}
	return app.Clone(), nil
}

// GetForUpdate returns a copy of an application. Transactions are already
// serialized, so no extra locking is needed.
func (r *ApplicationRepository) GetForUpdate(ctx context.Context, id shared.ApplicationID) (*application.Application, error) {
	return r.GetByID(ctx, id)
}

// Save stores app if its version matches the stored one.
func (r *ApplicationRepository) Save(ctx context.Context, app *application.Application) error {
	unlock := r.s.write(ctx)
	defer unlock()

	stored, ok := r.s.st.applications[app.ID]
	if !ok {
		return shared.ErrApplicationNotFound
	}
	if stored.Version != app.Version {
		return shared.ErrVersionConflict
	}
	app.Version++
	r.s.st.applications[app.ID] = app.Clone()
	return nil
}

// Delete removes an application.
func (r *ApplicationRepository) Delete(ctx context.Context, id shared.ApplicationID) error {
	unlock := r.s.write(ctx)
	defer unlock()

	if _, ok := r.s.st.applications[id]; !ok {
		return shared.ErrApplicationNotFound
	}
	delete(r.s.st.applications, id)
	return nil
}

// ExistsForStudentProgram reports whether the pair already has an application.
func (r *ApplicationRepository) ExistsForStudentProgram(ctx context.Context, studentID shared.StudentID, programID shared.ProgramID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, app := range r.s.st.applications {
		if app.StudentID == studentID && app.ProgramID == programID {
			return true, nil
		}
	}
	return false, nil
}

// ListByStudent returns a student's applications, newest first.
func (r *ApplicationRepository) ListByStudent(ctx context.Context, studentID shared.StudentID, opts application.ListOptions) ([]*application.Application, error) {
	return r.list(func(a *application.Application) bool { return a.StudentID == studentID }, opts), nil
}

// ListByProgram returns the applications to a program, newest first.
func (r *ApplicationRepository) ListByProgram(ctx context.Context, programID shared.ProgramID, opts application.ListOptions) ([]*application.Application, error) {
	return r.list(func(a *application.Application) bool { return a.ProgramID == programID }, opts), nil
}

func (r *ApplicationRepository) list(match func(*application.Application) bool, opts application.ListOptions) []*application.Application {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*application.Application
	for _, app := range r.s.st.applications {
		if !match(app) {
			continue
		}
		if opts.Status != "" && app.Status != opts.Status {
			continue
		}
		out = append(out, app.Clone())
	}
	sortNewestFirst(out)
	return paginate(out, opts.Offset, opts.Limit)
}

// LoadReferencePool returns the points of every applicant to the program
// whose profile carries points.
func (r *ApplicationRepository) LoadReferencePool(ctx context.Context, programID shared.ProgramID) ([]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var apps []*application.Application
	for _, app := range r.s.st.applications {
		if app.ProgramID == programID {
			apps = append(apps, app)
		}
	}
	sortNewestFirst(apps)

	pool := make([]int, 0, len(apps))
	for _, app := range apps {
		profile, ok := r.s.st.profiles[app.StudentID]
		if !ok || !profile.HasPoints() {
			continue
		}
		pool = append(pool, profile.ScoringPoints().Int())
	}
	return pool, nil
}

func sortNewestFirst(apps []*application.Application) {
	sort.Slice(apps, func(i, j int) bool {
		if !apps[i].DateApplied.Equal(apps[j].DateApplied) {
			return apps[i].DateApplied.After(apps[j].DateApplied)
		}
		return apps[i].ID > apps[j].ID
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
