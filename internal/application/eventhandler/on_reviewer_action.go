package eventhandler

import (
	"context"
	"fmt"

	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON REVIEWER ACTION HANDLER
// Document requests, alternative offers and messages each leave a
// notification in the student's inbox.
// ═══════════════════════════════════════════════════════════════════════════

// OnReviewerActionHandler notifies students about reviewer actions.
type OnReviewerActionHandler struct {
	notifier *Notifier
	log      *logger.Logger
}

// NewOnReviewerActionHandler creates a new OnReviewerActionHandler.
func NewOnReviewerActionHandler(notifier *Notifier, log *logger.Logger) *OnReviewerActionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnReviewerActionHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_reviewer_action")),
	}
}

// EventTypes implements Handler.
func (h *OnReviewerActionHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventDocumentsRequested,
		shared.EventAlternativeOffered,
		shared.EventMessageSent,
	}
}

// Handle implements shared.EventHandler.
func (h *OnReviewerActionHandler) Handle(event shared.Event) error {
	params, ok := h.buildParams(event)
	if !ok {
		return nil
	}
	if !params.RecipientID.IsValid() {
		h.log.Warn("reviewer event without recipient",
			logger.String("event_type", string(event.EventType())),
			logger.ApplicationID(event.AggregateID()),
		)
		return nil
	}

	if _, err := h.notifier.Notify(context.Background(), params); err != nil {
		h.log.Error("failed to notify reviewer action",
			logger.String("event_type", string(event.EventType())),
			logger.ApplicationID(event.AggregateID()),
			logger.Err(err),
		)
		return err
	}
	return nil
}

func (h *OnReviewerActionHandler) buildParams(event shared.Event) (notification.NewNotificationParams, bool) {
	params := notification.NewNotificationParams{ApplicationID: event.AggregateID()}

	switch event.EventType() {
	case shared.EventDocumentsRequested:
		params.RecipientID = notification.RecipientID(payloadString(event, "student_id"))
		params.Type = notification.NotificationTypeDocumentRequest
		params.Title = "Document Request"
		params.Message = fmt.Sprintf("%s requested additional documents for your application",
			reviewerName(payloadString(event, "reviewer_name")))

	case shared.EventAlternativeOffered:
		params.RecipientID = notification.RecipientID(payloadString(event, "student_id"))
		params.Type = notification.NotificationTypeProgramAlternative
		params.Title = "Alternative Program Offered"
		params.Message = fmt.Sprintf("%s offered you an alternative program: %s",
			reviewerName(payloadString(event, "reviewer_name")),
			payloadString(event, "alternative_program_name"))

	case shared.EventMessageSent:
		params.RecipientID = notification.RecipientID(payloadString(event, "recipient_id"))
		params.Type = notification.NotificationTypeMessage
		params.Title = "New Message"
		params.Message = fmt.Sprintf("%s sent you a message about your application",
			reviewerName(payloadString(event, "sender_name")))

	default:
		return params, false
	}
	return params, true
}

func reviewerName(name string) string {
	if name == "" {
		return "The admissions office"
	}
	return name
}
