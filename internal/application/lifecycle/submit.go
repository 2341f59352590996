package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT
// ══════════════════════════════════════════════════════════════════════════════

// SubmitCommand creates an application for the acting student.
type SubmitCommand struct {
	Actor             application.Actor
	ProgramID         shared.ProgramID
	PersonalStatement string
	Documents         []application.Document
}

// Validate validates the command.
func (c SubmitCommand) Validate() error {
	if c.Actor.ID == "" {
		return errors.New("submit: actor is required")
	}
	if c.ProgramID.IsEmpty() {
		return errors.New("submit: program_id is required")
	}
	return nil
}

// Submit creates a Pending application and logs CREATED.
func (m *Manager) Submit(ctx context.Context, cmd SubmitCommand) (*application.Application, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("lifecycle", "Submit", shared.ErrValidation, "invalid command", err)
	}

	program, err := m.catalog.GetProgram(ctx, cmd.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	var created *application.Application
	err = m.run(ctx, "submit", func(ctx context.Context, uow *unitOfWork) error {
		studentID := shared.StudentID(cmd.Actor.ID)

		exists, err := m.apps.ExistsForStudentProgram(ctx, studentID, program.ID)
		if err != nil {
			return err
		}
		if exists {
			return shared.ErrDuplicateApplication
		}

		app, err := application.NewApplication(application.NewApplicationParams{
			StudentID:         studentID,
			ProgramID:         program.ID,
			ProgramName:       program.Name,
			PersonalStatement: cmd.PersonalStatement,
			Documents:         cmd.Documents,
		}, m.now())
		if err != nil {
			return err
		}
		if err := m.apps.Create(ctx, app); err != nil {
			return err
		}

		if err := m.record(ctx, cmd.Actor, audit.ActionCreated,
			"Created application for "+app.Description(),
			map[string]any{
				audit.MetaApplicationID: app.ID.String(),
				audit.MetaProgram:       app.Description(),
				audit.MetaDocuments:     len(app.Documents) > 0,
			}); err != nil {
			return err
		}

		uow.emit(shared.NewApplicationSubmittedEvent(app.ID.String(), studentID.String(), program.ID.String()))
		created = app
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("application submitted",
		logger.ApplicationID(created.ID.String()),
		logger.StudentID(created.StudentID.String()),
		logger.ProgramID(created.ProgramID.String()),
	)
	return created, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE
// ══════════════════════════════════════════════════════════════════════════════

// UpdateCommand edits an application and optionally changes its status in the
// same unit of work.
type UpdateCommand struct {
	ApplicationID shared.ApplicationID
	Actor         application.Actor
	Details       application.UpdateDetails

	// Status, when set and different from the current status, is applied
	// after the field edits.
	Status *application.Status

	// Notes are appended to the admin notes together with the status change.
	// Only reviewers may set them.
	Notes string
}

// Validate validates the command.
func (c UpdateCommand) Validate() error {
	if c.ApplicationID.IsEmpty() {
		return errors.New("update: application_id is required")
	}
	if c.Actor.ID == "" {
		return errors.New("update: actor is required")
	}
	if c.Details.IsEmpty() && c.Status == nil {
		return errors.New("update: nothing to change")
	}
	if c.Status != nil && !c.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	return nil
}

// Update applies field edits (logged UPDATED) and then, if requested, a
// status change (logged as a status entry). Field edits require the
// application to be Pending.
func (m *Manager) Update(ctx context.Context, cmd UpdateCommand) (*application.Application, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("lifecycle", "Update", shared.ErrValidation, "invalid command", err)
	}
	if strings.TrimSpace(cmd.Notes) != "" && !cmd.Actor.CanWriteNotes() {
		return nil, shared.ErrActorNotPermitted
	}

	var updated *application.Application
	err := m.run(ctx, "update", func(ctx context.Context, uow *unitOfWork) error {
		app, err := m.load(ctx, cmd.ApplicationID)
		if err != nil {
			return err
		}
		if !cmd.Actor.CanEdit(app) {
			return shared.ErrActorNotPermitted
		}
		now := m.now()

		var changes []string
		if !cmd.Details.IsEmpty() {
			if err := app.Edit(cmd.Details, now); err != nil {
				return err
			}
			if cmd.Details.PersonalStatement != nil {
				changes = append(changes, "personal_statement")
			}
			if len(cmd.Details.Documents) > 0 {
				changes = append(changes, "documents")
			}
		}

		var statusChanged bool
		var old application.Status
		if cmd.Status != nil && *cmd.Status != app.Status {
			if !cmd.Actor.CanTransition(app, *cmd.Status) {
				return shared.ErrActorNotPermitted
			}
			old, err = app.ChangeStatus(*cmd.Status, cmd.Notes, now)
			if err != nil {
				return err
			}
			statusChanged = true
		}

		if len(changes) == 0 && !statusChanged {
			updated = app
			return nil
		}

		if err := m.apps.Save(ctx, app); err != nil {
			return err
		}

		if len(changes) > 0 {
			if err := m.record(ctx, cmd.Actor, audit.ActionUpdated,
				"Updated application for "+app.Description(),
				map[string]any{
					audit.MetaApplicationID: app.ID.String(),
					audit.MetaChanges:       changes,
				}); err != nil {
				return err
			}
			uow.emit(shared.NewApplicationUpdatedEvent(app.ID.String(), app.StudentID.String(), changes))
		}

		if statusChanged {
			if err := m.record(ctx, cmd.Actor, audit.ActionForStatus(app.Status.String()),
				statusChangeDescription(old, app.Status),
				statusChangeMetadata(app, old, app.Status)); err != nil {
				return err
			}
			uow.emit(shared.NewApplicationStatusChangedEvent(app.ID.String(), app.StudentID.String(),
				app.Description(), old.String(), app.Status.String(), cmd.Actor.ID))
		}

		updated = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE
// ══════════════════════════════════════════════════════════════════════════════

// DeleteCommand removes an application that has never changed status.
type DeleteCommand struct {
	ApplicationID shared.ApplicationID
	Actor         application.Actor
}

// Delete logs the deletion as UPDATED and removes the application.
// Applications with transition history are locked.
func (m *Manager) Delete(ctx context.Context, cmd DeleteCommand) error {
	if cmd.Actor.ID == "" {
		return shared.NewDomainError("lifecycle", "Delete", shared.ErrValidation, "actor is required")
	}

	return m.run(ctx, "delete", func(ctx context.Context, uow *unitOfWork) error {
		app, err := m.load(ctx, cmd.ApplicationID)
		if err != nil {
			return err
		}
		if !cmd.Actor.CanEdit(app) {
			return shared.ErrActorNotPermitted
		}
		if !app.CanBeDeleted() {
			return shared.WrapError("lifecycle", "Delete", shared.ErrLocked,
				"application has status history", shared.ErrApplicationLocked)
		}

		if err := m.record(ctx, cmd.Actor, audit.ActionUpdated,
			"Deleted application for "+app.Description(),
			map[string]any{
				audit.MetaApplicationID: app.ID.String(),
				audit.MetaProgram:       app.Description(),
				audit.MetaStatus:        app.Status.String(),
			}); err != nil {
			return err
		}
		if err := m.apps.Delete(ctx, app.ID); err != nil {
			return err
		}

		uow.emit(shared.NewApplicationDeletedEvent(app.ID.String(), app.StudentID.String(), app.ProgramID.String()))
		return nil
	})
}
