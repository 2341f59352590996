package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/message"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

// AuditLog implements audit.Sink and audit.Reader. Entries are insert-only.
type AuditLog struct {
	conn *Connection
}

var (
	_ audit.Sink   = (*AuditLog)(nil)
	_ audit.Reader = (*AuditLog)(nil)
)

// NewAuditLog creates a new AuditLog.
func NewAuditLog(conn *Connection) *AuditLog {
	return &AuditLog{conn: conn}
}

// Append inserts an entry in the caller's transaction.
func (l *AuditLog) Append(ctx context.Context, entry audit.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	_, err = l.conn.Exec(ctx, `
		INSERT INTO audit_log (id, actor, action, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Actor, string(entry.Action), entry.Description, metadata, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByActor returns an actor's entries, newest first.
func (l *AuditLog) ListByActor(ctx context.Context, actor string, limit int) ([]audit.Entry, error) {
	return l.list(ctx, "actor", actor, limit)
}

// ListByApplication returns the entries about an application, newest first.
func (l *AuditLog) ListByApplication(ctx context.Context, applicationID string, limit int) ([]audit.Entry, error) {
	return l.list(ctx, "application_id", applicationID, limit)
}

func (l *AuditLog) list(ctx context.Context, column, value string, limit int) ([]audit.Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, actor, action, description, metadata, created_at
		FROM audit_log WHERE %s = $1
		ORDER BY seq DESC
		LIMIT $2
	`, column)

	rows, err := l.conn.Query(ctx, query, value, nullLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			action   string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.Description, &metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = audit.ActionKind(action)
		e.Timestamp = e.Timestamp.UTC()
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// MessageRepository implements message.Repository.
type MessageRepository struct {
	conn *Connection
}

var _ message.Repository = (*MessageRepository)(nil)

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(conn *Connection) *MessageRepository {
	return &MessageRepository{conn: conn}
}

// Save stores a message.
func (r *MessageRepository) Save(ctx context.Context, m *message.Message) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO messages (id, application_id, sender_id, recipient_id, text, sent_at, is_read, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ApplicationID.String(), m.SenderID, m.RecipientID, m.Text, m.Timestamp, m.IsRead, m.IsSystem)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrApplicationNotFound
		}
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListByApplication returns an application's messages, newest first.
func (r *MessageRepository) ListByApplication(ctx context.Context, applicationID shared.ApplicationID, limit int) ([]*message.Message, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, application_id, sender_id, recipient_id, text, sent_at, is_read, is_system
		FROM messages WHERE application_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, applicationID.String(), nullLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*message.Message, error) {
		var (
			m     message.Message
			appID string
		)
		if err := row.Scan(&m.ID, &appID, &m.SenderID, &m.RecipientID, &m.Text, &m.Timestamp, &m.IsRead, &m.IsSystem); err != nil {
			return nil, err
		}
		m.ApplicationID = shared.ApplicationID(appID)
		m.Timestamp = m.Timestamp.UTC()
		return &m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}
	return msgs, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationRepository implements notification.Repository.
type NotificationRepository struct {
	conn *Connection
}

var _ notification.Repository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

const notificationColumns = `id, recipient_id, type, title, message, application_id, is_read, created_at, read_at`

// Save creates or replaces a notification.
func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, message = EXCLUDED.message,
			is_read = EXCLUDED.is_read, read_at = EXCLUDED.read_at
	`,
		n.ID.String(), n.RecipientID.String(), n.Type.String(), n.Title, n.Message,
		n.ApplicationID, n.IsRead, n.CreatedAt, n.ReadAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// GetByID returns a notification addressed to recipient.
func (r *NotificationRepository) GetByID(ctx context.Context, id notification.NotificationID, recipient notification.RecipientID) (*notification.Notification, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND recipient_id = $2`,
		id.String(), recipient.String())
	n, err := scanNotification(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipient notification.RecipientID, limit int) ([]*notification.Notification, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, recipient.String(), nullLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkAllRead flags every unread notification of recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient notification.RecipientID, at time.Time) (int, error) {
	result, err := r.conn.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND NOT is_read
	`, recipient.String(), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n                    notification.Notification
		id, recipient, ntype string
	)
	err := row.Scan(&id, &recipient, &ntype, &n.Title, &n.Message, &n.ApplicationID, &n.IsRead, &n.CreatedAt, &n.ReadAt)
	if err != nil {
		return nil, err
	}
	n.ID = notification.NotificationID(id)
	n.RecipientID = notification.RecipientID(recipient)
	n.Type = notification.NotificationType(ntype)
	n.CreatedAt = n.CreatedAt.UTC()
	if n.ReadAt != nil {
		t := n.ReadAt.UTC()
		n.ReadAt = &t
	}
	return &n, nil
}

// nullLimit turns a non-positive limit into LIMIT NULL, i.e. no limit.
func nullLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
