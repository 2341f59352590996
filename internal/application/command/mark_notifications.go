package command

import (
	"context"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK NOTIFICATIONS READ
// ══════════════════════════════════════════════════════════════════════════════

// MarkNotificationsCommand marks one notification, or all of them when
// NotificationID is empty, as read.
type MarkNotificationsCommand struct {
	UserID         notification.RecipientID
	NotificationID notification.NotificationID
}

// MarkNotificationsHandler handles the MarkNotificationsCommand.
type MarkNotificationsHandler struct {
	repo notification.Repository
	now  func() time.Time
}

// NewMarkNotificationsHandler creates a new MarkNotificationsHandler.
func NewMarkNotificationsHandler(repo notification.Repository) *MarkNotificationsHandler {
	return &MarkNotificationsHandler{repo: repo, now: time.Now}
}

// Handle marks notifications read and returns how many changed. Notifications
// addressed to someone else are reported as not found.
func (h *MarkNotificationsHandler) Handle(ctx context.Context, cmd MarkNotificationsCommand) (int, error) {
	if !cmd.UserID.IsValid() {
		return 0, notification.ErrInvalidRecipient
	}
	now := h.now()

	if !cmd.NotificationID.IsValid() {
		return h.repo.MarkAllRead(ctx, cmd.UserID, now)
	}

	n, err := h.repo.GetByID(ctx, cmd.NotificationID, cmd.UserID)
	if err != nil {
		return 0, err
	}
	if n.IsRead {
		return 0, nil
	}
	n.MarkRead(now)
	if err := h.repo.Save(ctx, n); err != nil {
		return 0, err
	}
	return 1, nil
}
