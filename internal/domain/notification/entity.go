// Package notification contains the in-app notification model shown to
// students and reviewers.
package notification

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationID is the unique identifier of a notification.
type NotificationID string

// IsValid checks that the ID is non-empty.
func (id NotificationID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation.
func (id NotificationID) String() string {
	return string(id)
}

// RecipientID identifies the user a notification is addressed to.
type RecipientID string

// IsValid checks that the ID is non-empty.
func (id RecipientID) IsValid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// String returns the string representation.
func (id RecipientID) String() string {
	return string(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// NotificationType defines what a notification is about.
type NotificationType string

const (
	// NotificationTypeMessage - a reviewer wrote about the application.
	NotificationTypeMessage NotificationType = "MESSAGE"

	// NotificationTypeStatusChange - the application moved to a new status.
	NotificationTypeStatusChange NotificationType = "STATUS_CHANGE"

	// NotificationTypeProgramAdded - a program the student may like was added.
	NotificationTypeProgramAdded NotificationType = "PROGRAM_ADDED"

	// NotificationTypeDeadline - an application deadline is approaching.
	NotificationTypeDeadline NotificationType = "DEADLINE"

	// NotificationTypeDocumentRequest - the reviewer asked for more documents.
	NotificationTypeDocumentRequest NotificationType = "DOCUMENT_REQUEST"

	// NotificationTypeProgramAlternative - the reviewer suggested another program.
	NotificationTypeProgramAlternative NotificationType = "PROGRAM_ALTERNATIVE"
)

// IsValid checks that the type is known.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeMessage,
		NotificationTypeStatusChange,
		NotificationTypeProgramAdded,
		NotificationTypeDeadline,
		NotificationTypeDocumentRequest,
		NotificationTypeProgramAlternative:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t NotificationType) String() string {
	return string(t)
}

// Priority returns how urgently the notification should be delivered outside the app.
func (t NotificationType) Priority() Priority {
	switch t {
	case NotificationTypeStatusChange, NotificationTypeDocumentRequest:
		return PriorityHigh
	case NotificationTypeMessage, NotificationTypeProgramAlternative, NotificationTypeDeadline:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Priority orders notifications for out-of-band delivery.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// ShouldEmail reports whether the notification warrants an email in addition to the in-app entry.
func (p Priority) ShouldEmail() bool {
	return p >= PriorityHigh
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID            NotificationID
	RecipientID   RecipientID
	Type          NotificationType
	Title         string
	Message       string
	ApplicationID string // optional reference
	IsRead        bool
	CreatedAt     time.Time
	ReadAt        *time.Time
}

// NewNotificationParams holds the input for NewNotification.
type NewNotificationParams struct {
	RecipientID   RecipientID
	Type          NotificationType
	Title         string
	Message       string
	ApplicationID string
}

// Validation errors for notifications.
var (
	ErrInvalidRecipient = errors.New("notification: recipient is required")
	ErrInvalidType      = errors.New("notification: unknown type")
	ErrEmptyTitle       = errors.New("notification: title is required")
)

// NewNotification creates an unread notification.
func NewNotification(params NewNotificationParams, now time.Time) (*Notification, error) {
	if !params.RecipientID.IsValid() {
		return nil, ErrInvalidRecipient
	}
	if !params.Type.IsValid() {
		return nil, ErrInvalidType
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, ErrEmptyTitle
	}
	return &Notification{
		ID:            NotificationID(uuid.NewString()),
		RecipientID:   params.RecipientID,
		Type:          params.Type,
		Title:         params.Title,
		Message:       params.Message,
		ApplicationID: params.ApplicationID,
		CreatedAt:     now.UTC(),
	}, nil
}

// MarkRead flags the notification as read. Calling it twice keeps the first ReadAt.
func (n *Notification) MarkRead(now time.Time) {
	if n.IsRead {
		return
	}
	t := now.UTC()
	n.IsRead = true
	n.ReadAt = &t
}
