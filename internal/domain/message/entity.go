// Package message models the conversation between reviewers and the student
// about an application.
package message

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// Message is a single note sent from one user to another.
type Message struct {
	ID            string
	ApplicationID shared.ApplicationID
	SenderID      string
	RecipientID   string
	Text          string
	Timestamp     time.Time
	IsRead        bool
	// IsSystem marks messages generated by the platform rather than a person.
	IsSystem bool
}

// NewMessage creates an unread message.
func NewMessage(applicationID shared.ApplicationID, senderID, recipientID, text string, now time.Time) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.ErrEmptyMessage
	}
	if senderID == "" || recipientID == "" {
		return nil, shared.NewDomainError("message", "Validate", shared.ErrInvalidID, "sender and recipient are required")
	}
	return &Message{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		SenderID:      senderID,
		RecipientID:   recipientID,
		Text:          text,
		Timestamp:     now.UTC(),
	}, nil
}

// Involves reports whether user is the sender or recipient.
func (m *Message) Involves(user string) bool {
	return m.SenderID == user || m.RecipientID == user
}

// Repository stores messages.
type Repository interface {
	// Save stores a new message.
	Save(ctx context.Context, m *Message) error

	// ListByApplication returns the messages attached to an application, newest first.
	ListByApplication(ctx context.Context, applicationID shared.ApplicationID, limit int) ([]*Message, error)
}
