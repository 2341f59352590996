package notification

import (
	"context"
	"time"
)

// Channel delivers a notification outside the app, e.g. by email.
// Delivery is best effort; failures never affect the notification record.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// Repository persists notifications per recipient.
type Repository interface {
	// Save creates or replaces a notification.
	Save(ctx context.Context, n *Notification) error

	// GetByID returns a notification addressed to recipient.
	// Returns ErrNotificationNotFound if it does not exist or belongs to someone else.
	GetByID(ctx context.Context, id NotificationID, recipient RecipientID) (*Notification, error)

	// ListByRecipient returns the recipient's notifications, newest first.
	ListByRecipient(ctx context.Context, recipient RecipientID, limit int) ([]*Notification, error)

	// MarkAllRead flags every unread notification of recipient as read and
	// returns how many were changed.
	MarkAllRead(ctx context.Context, recipient RecipientID, at time.Time) (int, error)
}
