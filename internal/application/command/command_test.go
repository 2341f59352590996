package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/memory"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESS ELIGIBILITY
// ══════════════════════════════════════════════════════════════════════════════

func newEligibility(store *memory.Store) *AssessEligibilityHandler {
	h := NewAssessEligibilityHandler(store.Profiles(), nil)
	h.now = func() time.Time { return fixedNow }
	return h
}

func TestAssessEligibility_RecordsProfile(t *testing.T) {
	store := memory.NewStore()
	h := newEligibility(store)

	res, err := h.Handle(context.Background(), AssessEligibilityCommand{
		StudentID: "s1", ExamBoard: " ZIMSEC ", Subjects: 6, Points: 9,
	})
	require.NoError(t, err)
	assert.True(t, res.Eligible)
	assert.True(t, res.Recorded)
	assert.Equal(t, applicant.ExamBoardZimsec, res.ExamBoard)

	profile, err := store.Profiles().GetProfile(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, profile.ALevelPoints)
	assert.Equal(t, 9, *profile.ALevelPoints)
	assert.Equal(t, 6, profile.OLevelSubjects)
	assert.Equal(t, fixedNow, profile.UpdatedAt)
}

func TestAssessEligibility_BoardThresholds(t *testing.T) {
	tests := []struct {
		name     string
		board    string
		subjects int
		points   int
		eligible bool
		recorded bool
	}{
		{"hexco minimum", "hexco", 5, 6, true, true},
		{"zimsec below points", "zimsec", 5, 7, false, true},
		{"cambridge below subjects", "cambridge", 5, 12, false, true},
		{"unknown board", "ieb", 8, 15, false, true},
		{"below baseline", "hexco", 4, 6, false, false},
		{"too few points", "zimsec", 7, 2, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			res, err := newEligibility(store).Handle(context.Background(), AssessEligibilityCommand{
				StudentID: "s1", ExamBoard: tt.board, Subjects: tt.subjects, Points: tt.points,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, res.Eligible)
			assert.Equal(t, tt.recorded, res.Recorded)

			_, err = store.Profiles().GetProfile(context.Background(), "s1")
			assert.Equal(t, tt.recorded, err == nil)
		})
	}
}

func TestAssessEligibility_KeepsExistingProfile(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	old := 4
	require.NoError(t, store.Profiles().SaveProfile(ctx, &applicant.Profile{
		StudentID: "s1", ExamBoard: applicant.ExamBoardHexco, OLevelSubjects: 5, ALevelPoints: &old,
	}))

	_, err := newEligibility(store).Handle(ctx, AssessEligibilityCommand{
		StudentID: "s1", ExamBoard: "cambridge", Subjects: 7, Points: 11,
	})
	require.NoError(t, err)

	profile, err := store.Profiles().GetProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, applicant.ExamBoardCambridge, profile.ExamBoard)
	assert.Equal(t, 11, *profile.ALevelPoints)
}

func TestAssessEligibility_Validation(t *testing.T) {
	h := newEligibility(memory.NewStore())

	_, err := h.Handle(context.Background(), AssessEligibilityCommand{ExamBoard: "zimsec", Subjects: 6, Points: 9})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.Handle(context.Background(), AssessEligibilityCommand{StudentID: "s1", Subjects: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ══════════════════════════════════════════════════════════════════════════════
// MARK NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

func addNotification(t *testing.T, store *memory.Store, recipient notification.RecipientID) *notification.Notification {
	t.Helper()
	n, err := notification.NewNotification(notification.NewNotificationParams{
		RecipientID: recipient,
		Type:        notification.NotificationTypeStatusChange,
		Title:       "Application Status Update",
	}, fixedNow)
	require.NoError(t, err)
	require.NoError(t, store.Notifications().Save(context.Background(), n))
	return n
}

func TestMarkNotifications_All(t *testing.T) {
	store := memory.NewStore()
	addNotification(t, store, "s1")
	addNotification(t, store, "s1")
	addNotification(t, store, "s2")

	h := NewMarkNotificationsHandler(store.Notifications())
	n, err := h.Handle(context.Background(), MarkNotificationsCommand{UserID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = h.Handle(context.Background(), MarkNotificationsCommand{UserID: "s1"})
	require.NoError(t, err)
	assert.Zero(t, n)

	others, err := store.Notifications().ListByRecipient(context.Background(), "s2", 10)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.False(t, others[0].IsRead)
}

func TestMarkNotifications_One(t *testing.T) {
	store := memory.NewStore()
	target := addNotification(t, store, "s1")
	addNotification(t, store, "s1")

	h := NewMarkNotificationsHandler(store.Notifications())
	h.now = func() time.Time { return fixedNow.Add(time.Hour) }

	n, err := h.Handle(context.Background(), MarkNotificationsCommand{UserID: "s1", NotificationID: target.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Notifications().GetByID(context.Background(), target.ID, "s1")
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)

	// Already read.
	n, err = h.Handle(context.Background(), MarkNotificationsCommand{UserID: "s1", NotificationID: target.ID})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkNotifications_OtherRecipient(t *testing.T) {
	store := memory.NewStore()
	target := addNotification(t, store, "s1")

	h := NewMarkNotificationsHandler(store.Notifications())
	_, err := h.Handle(context.Background(), MarkNotificationsCommand{UserID: "s2", NotificationID: target.ID})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), MarkNotificationsCommand{})
	assert.ErrorIs(t, err, notification.ErrInvalidRecipient)
}
