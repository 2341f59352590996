package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/memory"
)

var now = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func createApplication(t *testing.T, store *memory.Store, student, program string, at time.Time, status application.Status) *application.Application {
	t.Helper()
	app, err := application.NewApplication(application.NewApplicationParams{
		StudentID:         shared.StudentID(student),
		ProgramID:         shared.ProgramID(program),
		ProgramName:       program,
		PersonalStatement: "I want to study " + program,
	}, at)
	require.NoError(t, err)
	if status != application.StatusPending {
		_, err = app.ChangeStatus(status, "", at)
		require.NoError(t, err)
	}
	require.NoError(t, store.Applications().Create(context.Background(), app))
	return app
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestListByStudent(t *testing.T) {
	store := memory.NewStore()
	createApplication(t, store, "s1", "cs", now.Add(-48*time.Hour), application.StatusPending)
	createApplication(t, store, "s1", "math", now.Add(-24*time.Hour), application.StatusWaitlisted)
	createApplication(t, store, "s2", "cs", now, application.StatusPending)

	h := NewApplicationHandler(store.Applications(), store.Audit())

	apps, err := h.ListByStudent(context.Background(), ListApplicationsQuery{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "math", apps[0].ProgramID)
	assert.Equal(t, []string{"Approved", "Rejected", "Deferred"}, apps[0].AllowedNext)
	assert.True(t, apps[0].IsActive)
	assert.NotNil(t, apps[0].DateStatusChanged)
	assert.Equal(t, "cs", apps[1].ProgramID)
	assert.Len(t, apps[1].AllowedNext, 5)

	waitlisted, err := h.ListByStudent(context.Background(), ListApplicationsQuery{StudentID: "s1", Status: "waitlisted"})
	require.NoError(t, err)
	require.Len(t, waitlisted, 1)
	assert.Equal(t, "Waitlisted", waitlisted[0].Status)

	page, err := h.ListByStudent(context.Background(), ListApplicationsQuery{StudentID: "s1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "cs", page[0].ProgramID)
}

func TestListByStudent_InvalidQuery(t *testing.T) {
	h := NewApplicationHandler(memory.NewStore().Applications(), nil)

	_, err := h.ListByStudent(context.Background(), ListApplicationsQuery{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.ListByStudent(context.Background(), ListApplicationsQuery{StudentID: "s1", Status: "Accepted"})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestCheckApplied(t *testing.T) {
	store := memory.NewStore()
	createApplication(t, store, "s1", "cs", now, application.StatusPending)
	h := NewApplicationHandler(store.Applications(), nil)

	applied, err := h.CheckApplied(context.Background(), "s1", "cs")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = h.CheckApplied(context.Background(), "s1", "math")
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = h.CheckApplied(context.Background(), "", "cs")
	assert.Error(t, err)
}

func TestAuditTrail_Permissions(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	app := createApplication(t, store, "s1", "cs", now, application.StatusPending)

	for _, action := range []audit.ActionKind{audit.ActionCreated, audit.ActionApproved} {
		entry, err := audit.NewEntry("registrar", action, string(action), map[string]any{
			audit.MetaApplicationID: app.ID.String(),
		}, now)
		require.NoError(t, err)
		require.NoError(t, store.Audit().Append(ctx, entry))
	}

	h := NewApplicationHandler(store.Applications(), store.Audit())

	entries, err := h.AuditTrail(ctx, app.ID, application.Actor{ID: "s1"}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionApproved, entries[0].Action)

	entries, err = h.AuditTrail(ctx, app.ID, application.Actor{ID: "registrar", CanReviewStatus: true}, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = h.AuditTrail(ctx, app.ID, application.Actor{ID: "s2"}, 0)
	assert.ErrorIs(t, err, shared.ErrActorNotPermitted)

	_, err = h.AuditTrail(ctx, "missing", application.Actor{ID: "s1"}, 0)
	assert.True(t, shared.IsNotFound(err))
}

func TestStatusOptions(t *testing.T) {
	opts := NewApplicationHandler(nil, nil).StatusOptions()
	assert.Len(t, opts.Choices, 6)
	assert.Empty(t, opts.Transitions[application.StatusRejected])
}

// ══════════════════════════════════════════════════════════════════════════════
// DEADLINES
// ══════════════════════════════════════════════════════════════════════════════

func TestUpcomingDeadlines(t *testing.T) {
	store := memory.NewStore()
	cat := store.Catalog()
	cat.AddDeadline(catalog.Deadline{ID: "past", Title: "Closed", InstitutionID: "uz", Date: now.Add(-48 * time.Hour), IsActive: true})
	cat.AddDeadline(catalog.Deadline{ID: "later", Title: "Intake", InstitutionID: "uz", Date: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), Semester: catalog.SemesterFall, IsActive: true})
	cat.AddDeadline(catalog.Deadline{ID: "today", Title: "Fees", Date: time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), IsActive: true})
	cat.AddDeadline(catalog.Deadline{ID: "nust", Title: "NUST intake", InstitutionID: "nust", Date: now.Add(24 * time.Hour), IsActive: true})

	h := NewDeadlineHandler(cat, func() time.Time { return now })

	all, err := h.Upcoming(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "today", all[0].ID)
	assert.Equal(t, 0, all[0].DaysLeft)
	assert.Equal(t, "today", all[0].Due)
	assert.Equal(t, "nust", all[1].ID)
	assert.Equal(t, "tomorrow", all[1].Due)
	assert.Equal(t, "later", all[2].ID)
	assert.Equal(t, 3, all[2].DaysLeft)
	assert.Equal(t, "in 3 days", all[2].Due)
	assert.Equal(t, "Fall Semester", all[2].Semester)

	uz, err := h.Upcoming(context.Background(), "uz")
	require.NoError(t, err)
	require.Len(t, uz, 1)
	assert.Equal(t, "later", uz[0].ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestInbox(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for i, title := range []string{"First", "Second", "Third"} {
		n, err := notification.NewNotification(notification.NewNotificationParams{
			RecipientID: "s1",
			Type:        notification.NotificationTypeStatusChange,
			Title:       title,
		}, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		if i == 0 {
			n.MarkRead(now)
		}
		require.NoError(t, store.Notifications().Save(ctx, n))
	}

	h := NewNotificationHandler(store.Notifications())

	inbox, err := h.Inbox(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 3)
	assert.Equal(t, "Third", inbox.Notifications[0].Title)
	assert.Equal(t, 2, inbox.UnreadCount)

	empty, err := h.Inbox(ctx, "s2", 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Notifications)
	assert.Zero(t, empty.UnreadCount)

	_, err = h.Inbox(ctx, "", 10)
	assert.ErrorIs(t, err, notification.ErrInvalidRecipient)
}
