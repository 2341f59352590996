// Package application contains the domain model of a student's application
// to an academic program and the rules governing its status lifecycle.
package application

import (
	"strings"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTOR
// ══════════════════════════════════════════════════════════════════════════════

// Actor is whoever performs an operation. Authority is expressed as capability
// flags resolved by the caller's access-control layer.
type Actor struct {
	// ID - identity of the acting user.
	ID string

	// Name - display name used in audit descriptions and notifications.
	Name string

	// CanReviewStatus - may move applications through the review lifecycle.
	CanReviewStatus bool
}

// IsOwner reports whether the actor is the student who owns app.
func (a Actor) IsOwner(app *Application) bool {
	return a.ID != "" && app != nil && a.ID == app.StudentID.String()
}

// CanEdit reports whether the actor may change the application's fields.
func (a Actor) CanEdit(app *Application) bool {
	return a.CanReviewStatus || a.IsOwner(app)
}

// CanTransition reports whether the actor may move app into target.
// Owners may only withdraw; everything else needs review authority.
func (a Actor) CanTransition(app *Application, target Status) bool {
	if a.CanReviewStatus {
		return true
	}
	return target == StatusWithdrawn && a.IsOwner(app)
}

// CanWriteNotes reports whether the actor may add to the admin notes.
func (a Actor) CanWriteNotes() bool { return a.CanReviewStatus }

// DisplayName returns the actor's name, falling back to the ID.
func (a Actor) DisplayName() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.ID
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// Document is a reference to an uploaded supporting file. Storage itself lives elsewhere.
type Document struct {
	ID         string
	FileRef    string
	UploadedAt time.Time
}

// Application is a student's request for admission to one program.
type Application struct {
	// ID - unique identifier.
	ID shared.ApplicationID

	// StudentID - owning student.
	StudentID shared.StudentID

	// ProgramID - target program. (StudentID, ProgramID) is unique.
	ProgramID shared.ProgramID

	// ProgramName - denormalized for audit metadata and notifications.
	ProgramName string

	// Status - current lifecycle state.
	Status Status

	// PersonalStatement - free text supplied by the student.
	PersonalStatement string

	// Documents - attached supporting files.
	Documents []Document

	// DateApplied - creation time, never changes.
	DateApplied time.Time

	// DateUpdated - bumped on every write.
	DateUpdated time.Time

	// DateStatusChanged - nil until the first real transition.
	DateStatusChanged *time.Time

	// AdminNotes - reviewer notes, appended and never overwritten.
	AdminNotes string

	// Version - optimistic concurrency token, incremented by each save.
	Version int
}

// NewApplicationParams holds the input for NewApplication.
type NewApplicationParams struct {
	StudentID         shared.StudentID
	ProgramID         shared.ProgramID
	ProgramName       string
	PersonalStatement string
	Documents         []Document
}

// Validate checks the parameters.
func (p NewApplicationParams) Validate() error {
	if p.StudentID.IsEmpty() {
		return shared.NewDomainError("application", "Create", shared.ErrInvalidID, "student id is required")
	}
	if p.ProgramID.IsEmpty() {
		return shared.NewDomainError("application", "Create", shared.ErrInvalidID, "program id is required")
	}
	if strings.TrimSpace(p.PersonalStatement) == "" {
		return shared.NewDomainError("application", "Create", shared.ErrEmptyValue, "personal statement is required")
	}
	return nil
}

// NewApplication creates a Pending application.
func NewApplication(params NewApplicationParams, now time.Time) (*Application, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Application{
		ID:                shared.NewApplicationID(),
		StudentID:         params.StudentID,
		ProgramID:         params.ProgramID,
		ProgramName:       params.ProgramName,
		Status:            StatusPending,
		PersonalStatement: strings.TrimSpace(params.PersonalStatement),
		Documents:         append([]Document(nil), params.Documents...),
		DateApplied:       now,
		DateUpdated:       now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// ChangeStatus moves the application to target and returns the previous status.
// On error the application is left untouched.
func (a *Application) ChangeStatus(target Status, notes string, now time.Time) (Status, error) {
	if !target.IsValid() {
		return a.Status, shared.ErrInvalidStatus
	}
	if !a.Status.CanTransitionTo(target) {
		return a.Status, shared.WrapError("application", "Transition", shared.ErrStateTransition,
			"cannot change status from "+a.Status.String()+" to "+target.String(), shared.ErrInvalidTransition)
	}

	now = now.UTC()
	if a.DateStatusChanged != nil && now.Before(*a.DateStatusChanged) {
		now = *a.DateStatusChanged
	}

	old := a.Status
	a.Status = target
	a.DateStatusChanged = &now
	a.AppendNotes(notes)
	a.touch(now)
	return old, nil
}

// AppendNotes adds reviewer notes, preserving everything recorded before.
func (a *Application) AppendNotes(notes string) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return
	}
	if a.AdminNotes == "" {
		a.AdminNotes = notes
		return
	}
	a.AdminNotes = a.AdminNotes + "\n\n" + notes
}

// AddTaggedNote appends a note prefixed with a reviewer action tag,
// e.g. "DOCUMENT REQUESTED: transcript".
func (a *Application) AddTaggedNote(tag, text string, now time.Time) error {
	if a.Status.IsTerminal() {
		return shared.WrapError("application", "AddNote", shared.ErrLocked,
			"application is "+a.Status.String(), shared.ErrApplicationLocked)
	}
	a.AppendNotes(tag + ": " + strings.TrimSpace(text))
	a.touch(now.UTC())
	return nil
}

// UpdateDetails holds the fields a student may edit while the application is pending.
// Nil fields are left unchanged.
type UpdateDetails struct {
	PersonalStatement *string
	Documents         []Document
}

// IsEmpty reports whether the update carries no changes.
func (u UpdateDetails) IsEmpty() bool {
	return u.PersonalStatement == nil && len(u.Documents) == 0
}

// Edit applies field changes. Only Pending applications can be edited.
func (a *Application) Edit(details UpdateDetails, now time.Time) error {
	if a.Status != StatusPending {
		return shared.ErrApplicationLocked
	}
	if details.PersonalStatement != nil {
		ps := strings.TrimSpace(*details.PersonalStatement)
		if ps == "" {
			return shared.NewDomainError("application", "Update", shared.ErrEmptyValue, "personal statement is required")
		}
		a.PersonalStatement = ps
	}
	a.Documents = append(a.Documents, details.Documents...)
	a.touch(now.UTC())
	return nil
}

// CanBeDeleted reports whether the application has no transition history.
func (a *Application) CanBeDeleted() bool {
	return a.DateStatusChanged == nil
}

// Description returns a short human-readable label used in audit entries.
func (a *Application) Description() string {
	if a.ProgramName != "" {
		return a.ProgramName
	}
	return a.ProgramID.String()
}

// Clone returns a deep copy.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.Documents = append([]Document(nil), a.Documents...)
	if a.DateStatusChanged != nil {
		t := *a.DateStatusChanged
		c.DateStatusChanged = &t
	}
	return &c
}

func (a *Application) touch(now time.Time) {
	if now.Before(a.DateUpdated) {
		now = a.DateUpdated
	}
	a.DateUpdated = now
}
