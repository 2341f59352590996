package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/memory"
)

type recordingChannel struct {
	mu        sync.Mutex
	delivered []*notification.Notification
	err       error
}

func (c *recordingChannel) Name() string { return "test" }

func (c *recordingChannel) Deliver(_ context.Context, n *notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, n)
	return c.err
}

type recordingSubscriber struct {
	types []shared.EventType
}

func (s *recordingSubscriber) Subscribe(t shared.EventType, _ shared.EventHandler) error {
	s.types = append(s.types, t)
	return nil
}

func (s *recordingSubscriber) SubscribeAll(shared.EventHandler) error { return nil }

type fixture struct {
	repo     *memory.NotificationRepository
	email    *recordingChannel
	features *config.FeatureFlags
	notifier *Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		repo:     store.Notifications(),
		email:    &recordingChannel{},
		features: config.LoadFeatureFlags(),
	}
	f.notifier = NewNotifier(f.repo, f.email, f.features, nil)
	return f
}

func (f *fixture) inbox(t *testing.T, user string) []*notification.Notification {
	t.Helper()
	items, err := f.repo.ListByRecipient(context.Background(), notification.RecipientID(user), 10)
	require.NoError(t, err)
	return items
}

func TestOnStatusChanged_CreatesNotification(t *testing.T) {
	f := newFixture(t)
	h := NewOnStatusChangedHandler(f.notifier, f.features, nil)

	event := shared.NewApplicationStatusChangedEvent("app-1", "student-1",
		"Computer Science at UZ", "Pending", "Approved", "enroller-1")
	require.NoError(t, h.Handle(event))

	items := f.inbox(t, "student-1")
	require.Len(t, items, 1)
	assert.Equal(t, notification.NotificationTypeStatusChange, items[0].Type)
	assert.Equal(t, "Application Status Updated", items[0].Title)
	assert.Equal(t, "Your application for Computer Science at UZ is now Approved", items[0].Message)
	assert.Equal(t, "app-1", items[0].ApplicationID)
	assert.False(t, items[0].IsRead)
	assert.Empty(t, f.email.delivered, "email is off by default")
}

func TestOnStatusChanged_SkipsOwnWithdrawal(t *testing.T) {
	f := newFixture(t)
	h := NewOnStatusChangedHandler(f.notifier, f.features, nil)

	event := shared.NewApplicationStatusChangedEvent("app-1", "student-1",
		"Computer Science at UZ", "Pending", "Withdrawn", "student-1")
	require.NoError(t, h.Handle(event))

	assert.Empty(t, f.inbox(t, "student-1"))
}

func TestOnStatusChanged_FeatureDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.features.DisableFeature(config.FeatureNotifyStatusChange))
	h := NewOnStatusChangedHandler(f.notifier, f.features, nil)

	event := shared.NewApplicationStatusChangedEvent("app-1", "student-1",
		"Computer Science at UZ", "Pending", "Rejected", "enroller-1")
	require.NoError(t, h.Handle(event))

	assert.Empty(t, f.inbox(t, "student-1"))
}

func TestOnStatusChanged_EmailsWhenEnabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.features.EnableFeature(config.FeatureNotifyEmail))
	f.email.err = errors.New("smtp down")
	h := NewOnStatusChangedHandler(f.notifier, f.features, nil)

	event := shared.NewApplicationStatusChangedEvent("app-1", "student-1",
		"Computer Science at UZ", "Pending", "Deferred", "enroller-1")
	require.NoError(t, h.Handle(event), "email failures are not returned")

	require.Len(t, f.email.delivered, 1)
	assert.Equal(t, notification.RecipientID("student-1"), f.email.delivered[0].RecipientID)
	assert.Len(t, f.inbox(t, "student-1"), 1)
}

func TestOnReviewerAction_Texts(t *testing.T) {
	tests := []struct {
		name      string
		event     shared.Event
		recipient string
		typ       notification.NotificationType
		title     string
		message   string
	}{
		{
			name:      "documents requested",
			event:     shared.NewDocumentsRequestedEvent("app-1", "student-1", "CS at UZ", "transcript", "Tendai Moyo"),
			recipient: "student-1",
			typ:       notification.NotificationTypeDocumentRequest,
			title:     "Document Request",
			message:   "Tendai Moyo requested additional documents for your application",
		},
		{
			name:      "alternative offered",
			event:     shared.NewAlternativeOfferedEvent("app-1", "student-1", "CS at UZ", "ma", "Mathematics", "Tendai Moyo"),
			recipient: "student-1",
			typ:       notification.NotificationTypeProgramAlternative,
			title:     "Alternative Program Offered",
			message:   "Tendai Moyo offered you an alternative program: Mathematics",
		},
		{
			name:      "message sent",
			event:     shared.NewMessageSentEvent("app-1", "enroller-1", "", "student-1", "CS at UZ"),
			recipient: "student-1",
			typ:       notification.NotificationTypeMessage,
			title:     "New Message",
			message:   "The admissions office sent you a message about your application",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			h := NewOnReviewerActionHandler(f.notifier, nil)

			require.NoError(t, h.Handle(tt.event))

			items := f.inbox(t, tt.recipient)
			require.Len(t, items, 1)
			assert.Equal(t, tt.typ, items[0].Type)
			assert.Equal(t, tt.title, items[0].Title)
			assert.Equal(t, tt.message, items[0].Message)
		})
	}
}

func TestOnReviewerAction_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	h := NewOnReviewerActionHandler(f.notifier, nil)

	require.NoError(t, h.Handle(shared.NewApplicationSubmittedEvent("app-1", "student-1", "cs")))
	assert.Empty(t, f.inbox(t, "student-1"))
}

func TestRegister_SubscribesEveryType(t *testing.T) {
	f := newFixture(t)
	sub := &recordingSubscriber{}

	err := Register(sub,
		NewOnStatusChangedHandler(f.notifier, f.features, nil),
		NewOnReviewerActionHandler(f.notifier, nil),
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []shared.EventType{
		shared.EventApplicationStatusChanged,
		shared.EventDocumentsRequested,
		shared.EventAlternativeOffered,
		shared.EventMessageSent,
	}, sub.types)
}
