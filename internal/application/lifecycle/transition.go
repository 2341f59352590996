package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// TransitionCommand moves an application to a new status.
type TransitionCommand struct {
	ApplicationID shared.ApplicationID
	Target        application.Status
	Actor         application.Actor
	Notes         string
}

// Validate validates the command.
func (c TransitionCommand) Validate() error {
	if c.ApplicationID.IsEmpty() {
		return errors.New("transition: application_id is required")
	}
	if c.Actor.ID == "" {
		return errors.New("transition: actor is required")
	}
	return nil
}

// TransitionResult describes an applied transition.
type TransitionResult struct {
	Application *application.Application
	OldStatus   application.Status
	NewStatus   application.Status
}

// Transition re-reads the application under a row lock, validates the move
// against the persisted status, saves it and writes exactly one audit entry,
// all in one transaction. Version conflicts are retried from a fresh read.
// The status-changed event is published after commit.
func (m *Manager) Transition(ctx context.Context, cmd TransitionCommand) (*TransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("lifecycle", "Transition", shared.ErrValidation, "invalid command", err)
	}
	if !cmd.Target.IsValid() {
		return nil, shared.ErrInvalidStatus
	}
	if strings.TrimSpace(cmd.Notes) != "" && !cmd.Actor.CanWriteNotes() {
		return nil, shared.ErrActorNotPermitted
	}

	log := m.log.With(
		logger.ApplicationID(cmd.ApplicationID.String()),
		logger.Actor(cmd.Actor.ID),
	)

	var result *TransitionResult
	err := m.run(ctx, "transition", func(ctx context.Context, uow *unitOfWork) error {
		app, err := m.load(ctx, cmd.ApplicationID)
		if err != nil {
			return err
		}
		if !cmd.Actor.CanTransition(app, cmd.Target) {
			metrics.RecordTransition(app.Status.String(), cmd.Target.String(), metrics.OutcomeForbidden)
			return shared.ErrActorNotPermitted
		}

		old, err := app.ChangeStatus(cmd.Target, cmd.Notes, m.now())
		if err != nil {
			metrics.RecordTransition(app.Status.String(), cmd.Target.String(), metrics.OutcomeRejected)
			return err
		}

		if err := m.apps.Save(ctx, app); err != nil {
			return err
		}
		if err := m.record(ctx, cmd.Actor, audit.ActionForStatus(app.Status.String()),
			statusChangeDescription(old, app.Status),
			statusChangeMetadata(app, old, app.Status)); err != nil {
			return err
		}

		uow.emit(shared.NewApplicationStatusChangedEvent(app.ID.String(), app.StudentID.String(),
			app.Description(), old.String(), app.Status.String(), cmd.Actor.ID))
		result = &TransitionResult{Application: app, OldStatus: old, NewStatus: app.Status}
		return nil
	})
	if err != nil {
		if !shared.IsInvalidTransition(err) && !shared.IsForbidden(err) {
			metrics.RecordTransition("", cmd.Target.String(), metrics.OutcomeError)
			log.Warn("transition failed", logger.Status(cmd.Target.String()), logger.Err(err))
		}
		return nil, err
	}

	metrics.RecordTransition(result.OldStatus.String(), result.NewStatus.String(), metrics.OutcomeApplied)
	log.Info("application status changed",
		logger.String("old_status", result.OldStatus.String()),
		logger.Status(result.NewStatus.String()),
	)
	return result, nil
}
