package eventhandler

import (
	"context"
	"fmt"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STATUS CHANGED HANDLER
// Tells the student that a reviewer moved their application.
// ═══════════════════════════════════════════════════════════════════════════

// OnStatusChangedHandler turns ApplicationStatusChangedEvent into a
// STATUS_CHANGE notification.
type OnStatusChangedHandler struct {
	notifier *Notifier
	features *config.FeatureFlags
	log      *logger.Logger
}

// NewOnStatusChangedHandler creates a new OnStatusChangedHandler.
func NewOnStatusChangedHandler(notifier *Notifier, features *config.FeatureFlags, log *logger.Logger) *OnStatusChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnStatusChangedHandler{
		notifier: notifier,
		features: features,
		log:      log.With(logger.Component("on_status_changed")),
	}
}

// EventTypes implements Handler.
func (h *OnStatusChangedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{shared.EventApplicationStatusChanged}
}

// Handle implements shared.EventHandler.
func (h *OnStatusChangedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventApplicationStatusChanged {
		return nil
	}

	studentID := payloadString(event, "student_id")
	changedBy := payloadString(event, "changed_by")
	newStatus := payloadString(event, "new_status")

	// A student withdrawing their own application needs no notice.
	if studentID == "" || changedBy == studentID {
		return nil
	}
	if !h.features.IsEnabled(config.FeatureNotifyStatusChange, &config.FeatureContext{UserID: studentID}) {
		h.log.Debug("status change notifications disabled", logger.StudentID(studentID))
		return nil
	}

	_, err := h.notifier.Notify(context.Background(), notification.NewNotificationParams{
		RecipientID:   notification.RecipientID(studentID),
		Type:          notification.NotificationTypeStatusChange,
		Title:         "Application Status Updated",
		Message:       fmt.Sprintf("Your application for %s is now %s", payloadString(event, "program_name"), newStatus),
		ApplicationID: event.AggregateID(),
	})
	if err != nil {
		h.log.Error("failed to notify status change",
			logger.ApplicationID(event.AggregateID()),
			logger.StudentID(studentID),
			logger.Err(err),
		)
		return err
	}
	return nil
}
