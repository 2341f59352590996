// Package eventhandler contains domain event handlers.
// Handlers react to committed lifecycle changes and produce side effects
// such as in-app notifications and emails. They never change application state.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// NOTIFIER
// Stores in-app notifications and forwards high-priority ones to the email
// channel when it is switched on.
// ═══════════════════════════════════════════════════════════════════════════

// Notifier creates notifications for a single recipient.
type Notifier struct {
	repo     notification.Repository
	email    notification.Channel
	features *config.FeatureFlags
	log      *logger.Logger
	now      func() time.Time
}

// NewNotifier creates a Notifier. email may be nil.
func NewNotifier(
	repo notification.Repository,
	email notification.Channel,
	features *config.FeatureFlags,
	log *logger.Logger,
) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{
		repo:     repo,
		email:    email,
		features: features,
		log:      log.With(logger.Component("notifier")),
		now:      time.Now,
	}
}

// Notify stores the notification and, for high-priority types, hands it to
// the email channel. Email failures are logged and never returned.
func (n *Notifier) Notify(ctx context.Context, params notification.NewNotificationParams) (*notification.Notification, error) {
	note, err := notification.NewNotification(params, n.now())
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	if err := n.repo.Save(ctx, note); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}

	if n.shouldEmail(note) {
		if err := n.email.Deliver(ctx, note); err != nil {
			n.log.Warn("email delivery failed",
				logger.String("channel", n.email.Name()),
				logger.String("notification_id", note.ID.String()),
				logger.Err(err),
			)
		}
	}
	return note, nil
}

func (n *Notifier) shouldEmail(note *notification.Notification) bool {
	if n.email == nil || !note.Type.Priority().ShouldEmail() {
		return false
	}
	return n.features.IsEnabled(config.FeatureNotifyEmail, &config.FeatureContext{UserID: note.RecipientID.String()})
}

// ═══════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ═══════════════════════════════════════════════════════════════════════════

// Handler is implemented by every event handler in this package.
type Handler interface {
	// EventTypes lists the events the handler consumes.
	EventTypes() []shared.EventType

	// Handle processes one event.
	Handle(event shared.Event) error
}

// Register subscribes every handler to its event types.
func Register(bus shared.EventSubscriber, handlers ...Handler) error {
	for _, h := range handlers {
		for _, t := range h.EventTypes() {
			if err := bus.Subscribe(t, h.Handle); err != nil {
				return fmt.Errorf("subscribe %s: %w", t, err)
			}
		}
	}
	return nil
}

// payloadString reads a string field from the event payload. Events that
// crossed the Redis bus only carry their payload, so handlers never rely on
// the concrete event type.
func payloadString(e shared.Event, key string) string {
	v, ok := e.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
