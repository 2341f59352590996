package lifecycle

import (
	"context"
	"strings"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/message"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// Tags prefixed to reviewer notes.
const (
	TagDocumentRequested  = "DOCUMENT REQUESTED"
	TagAlternativeOffered = "ALTERNATIVE PROGRAM OFFERED"
)

const defaultMessageLimit = 50

// ══════════════════════════════════════════════════════════════════════════════
// REVIEWER ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// RequestDocumentsCommand asks the student for additional documents.
type RequestDocumentsCommand struct {
	ApplicationID shared.ApplicationID
	Actor         application.Actor
	Documents     string
}

// RequestDocuments tags the admin notes, logs DOCUMENT_REQUEST and notifies the student.
func (m *Manager) RequestDocuments(ctx context.Context, cmd RequestDocumentsCommand) (*application.Application, error) {
	docs := strings.TrimSpace(cmd.Documents)
	if docs == "" {
		return nil, shared.NewDomainError("lifecycle", "RequestDocuments", shared.ErrEmptyValue, "documents are required")
	}

	return m.annotate(ctx, "request_documents", cmd.ApplicationID, cmd.Actor,
		func(ctx context.Context, app *application.Application, uow *unitOfWork) error {
			if err := app.AddTaggedNote(TagDocumentRequested, docs, m.now()); err != nil {
				return err
			}
			if err := m.apps.Save(ctx, app); err != nil {
				return err
			}
			if err := m.record(ctx, cmd.Actor, audit.ActionDocumentRequest,
				"Requested documents: "+docs, reviewMetadata(app)); err != nil {
				return err
			}
			uow.emit(shared.NewDocumentsRequestedEvent(app.ID.String(), app.StudentID.String(), app.Description(), docs, cmd.Actor.DisplayName()))
			return nil
		})
}

// OfferAlternativeCommand suggests another program to the student.
type OfferAlternativeCommand struct {
	ApplicationID        shared.ApplicationID
	Actor                application.Actor
	AlternativeProgramID shared.ProgramID
}

// OfferAlternative tags the admin notes, logs ALTERNATIVE_OFFER and notifies the student.
func (m *Manager) OfferAlternative(ctx context.Context, cmd OfferAlternativeCommand) (*application.Application, error) {
	if cmd.AlternativeProgramID.IsEmpty() {
		return nil, shared.NewDomainError("lifecycle", "OfferAlternative", shared.ErrInvalidID, "alternative program id is required")
	}
	alt, err := m.catalog.GetProgram(ctx, cmd.AlternativeProgramID)
	if err != nil {
		return nil, err
	}

	return m.annotate(ctx, "offer_alternative", cmd.ApplicationID, cmd.Actor,
		func(ctx context.Context, app *application.Application, uow *unitOfWork) error {
			if alt.ID == app.ProgramID {
				return shared.NewDomainError("lifecycle", "OfferAlternative", shared.ErrInvalidInput,
					"alternative must differ from the applied program")
			}
			if err := app.AddTaggedNote(TagAlternativeOffered, alt.Name, m.now()); err != nil {
				return err
			}
			if err := m.apps.Save(ctx, app); err != nil {
				return err
			}
			if err := m.record(ctx, cmd.Actor, audit.ActionAlternativeOffer,
				"Offered alternative program: "+alt.Name, reviewMetadata(app)); err != nil {
				return err
			}
			uow.emit(shared.NewAlternativeOfferedEvent(app.ID.String(), app.StudentID.String(),
				app.Description(), alt.ID.String(), alt.Name, cmd.Actor.DisplayName()))
			return nil
		})
}

// annotate runs a reviewer-only action against a locked application.
func (m *Manager) annotate(
	ctx context.Context,
	op string,
	id shared.ApplicationID,
	actor application.Actor,
	fn func(ctx context.Context, app *application.Application, uow *unitOfWork) error,
) (*application.Application, error) {
	if !actor.CanReviewStatus {
		return nil, shared.ErrActorNotPermitted
	}

	var out *application.Application
	err := m.run(ctx, op, func(ctx context.Context, uow *unitOfWork) error {
		app, err := m.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, app, uow); err != nil {
			return err
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func reviewMetadata(app *application.Application) map[string]any {
	return map[string]any{
		audit.MetaApplicationID: app.ID.String(),
		audit.MetaProgram:       app.Description(),
		audit.MetaStudent:       app.StudentID.String(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageCommand sends a reviewer message to the student who owns the application.
type SendMessageCommand struct {
	ApplicationID shared.ApplicationID
	Actor         application.Actor
	Text          string
}

// SendMessage stores the message and logs MESSAGE in one transaction.
func (m *Manager) SendMessage(ctx context.Context, cmd SendMessageCommand) (*message.Message, error) {
	if !cmd.Actor.CanReviewStatus {
		return nil, shared.ErrActorNotPermitted
	}

	var sent *message.Message
	err := m.run(ctx, "send_message", func(ctx context.Context, uow *unitOfWork) error {
		app, err := m.apps.GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return err
		}
		msg, err := message.NewMessage(app.ID, cmd.Actor.ID, app.StudentID.String(), cmd.Text, m.now())
		if err != nil {
			return err
		}
		if err := m.messages.Save(ctx, msg); err != nil {
			return err
		}
		if err := m.record(ctx, cmd.Actor, audit.ActionMessage,
			"Sent message to student", reviewMetadata(app)); err != nil {
			return err
		}
		uow.emit(shared.NewMessageSentEvent(app.ID.String(), cmd.Actor.ID, cmd.Actor.DisplayName(),
			app.StudentID.String(), app.Description()))
		sent = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}

// ListMessages returns the messages attached to an application, newest first.
// Only the owning student and reviewers may read them.
func (m *Manager) ListMessages(ctx context.Context, id shared.ApplicationID, viewer application.Actor, limit int) ([]*message.Message, error) {
	app, err := m.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanEdit(app) {
		return nil, shared.ErrActorNotPermitted
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	return m.messages.ListByApplication(ctx, app.ID, limit)
}
