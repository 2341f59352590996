package memory

import (
	"context"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/message"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// AuditLog implements audit.Sink and audit.Reader.
type AuditLog struct {
	s *Store
}

// Append adds an entry to the log.
func (l *AuditLog) Append(ctx context.Context, entry audit.Entry) error {
	unlock := l.s.write(ctx)
	defer unlock()

	l.s.st.audit = append(l.s.st.audit, entry)
	return nil
}

// Entries returns every entry in append order.
func (l *AuditLog) Entries() []audit.Entry {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return append([]audit.Entry(nil), l.s.st.audit...)
}

// ListByActor returns an actor's entries, newest first.
func (l *AuditLog) ListByActor(ctx context.Context, actor string, limit int) ([]audit.Entry, error) {
	return l.newest(func(e audit.Entry) bool { return e.Actor == actor }, limit), nil
}

// ListByApplication returns the entries about an application, newest first.
func (l *AuditLog) ListByApplication(ctx context.Context, applicationID string, limit int) ([]audit.Entry, error) {
	return l.newest(func(e audit.Entry) bool {
		id, _ := e.Metadata[audit.MetaApplicationID].(string)
		return id == applicationID
	}, limit), nil
}

func (l *AuditLog) newest(match func(audit.Entry) bool, limit int) []audit.Entry {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	var out []audit.Entry
	for i := len(l.s.st.audit) - 1; i >= 0; i-- {
		if e := l.s.st.audit[i]; match(e) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// MessageRepository implements message.Repository.
type MessageRepository struct {
	s *Store
}

// Save stores a message.
func (r *MessageRepository) Save(ctx context.Context, m *message.Message) error {
	unlock := r.s.write(ctx)
	defer unlock()

	r.s.st.messages = append(r.s.st.messages, *m)
	return nil
}

// ListByApplication returns an application's messages, newest first.
func (r *MessageRepository) ListByApplication(ctx context.Context, applicationID shared.ApplicationID, limit int) ([]*message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*message.Message
	for i := len(r.s.st.messages) - 1; i >= 0; i-- {
		m := r.s.st.messages[i]
		if m.ApplicationID != applicationID {
			continue
		}
		out = append(out, &m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// NotificationRepository implements notification.Repository.
type NotificationRepository struct {
	s *Store
}

// Save creates or replaces a notification.
func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	unlock := r.s.write(ctx)
	defer unlock()

	for i := range r.s.st.notifications {
		if r.s.st.notifications[i].ID == n.ID {
			r.s.st.notifications[i] = *n
			return nil
		}
	}
	r.s.st.notifications = append(r.s.st.notifications, *n)
	return nil
}

// GetByID returns a notification addressed to recipient.
func (r *NotificationRepository) GetByID(ctx context.Context, id notification.NotificationID, recipient notification.RecipientID) (*notification.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, n := range r.s.st.notifications {
		if n.ID == id && n.RecipientID == recipient {
			return &n, nil
		}
	}
	return nil, shared.ErrNotificationNotFound
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipient notification.RecipientID, limit int) ([]*notification.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*notification.Notification
	for i := len(r.s.st.notifications) - 1; i >= 0; i-- {
		n := r.s.st.notifications[i]
		if n.RecipientID != recipient {
			continue
		}
		out = append(out, &n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkAllRead flags every unread notification of recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient notification.RecipientID, at time.Time) (int, error) {
	unlock := r.s.write(ctx)
	defer unlock()

	changed := 0
	for i := range r.s.st.notifications {
		n := &r.s.st.notifications[i]
		if n.RecipientID == recipient && !n.IsRead {
			n.MarkRead(at)
			changed++
		}
	}
	return changed, nil
}
