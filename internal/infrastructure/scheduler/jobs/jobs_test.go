package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/memory"
)

var today = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	cat := store.Catalog()
	cat.AddInstitution(catalog.Institution{ID: "uz", Name: "University of Zimbabwe"})
	cat.AddInstitution(catalog.Institution{ID: "nust", Name: "NUST"})
	require.NoError(t, cat.AddProgram(catalog.Program{ID: "cs", Code: "CS", Name: "Computer Science", InstitutionID: "uz", FacultyID: "sci"}))
	require.NoError(t, cat.AddProgram(catalog.Program{ID: "ma", Code: "MA", Name: "Mathematics", InstitutionID: "uz", FacultyID: "sci"}))
	require.NoError(t, cat.AddProgram(catalog.Program{ID: "ee", Code: "EE", Name: "Electrical Engineering", InstitutionID: "nust", FacultyID: "eng"}))
	return &fixture{store: store, notifier: &recordingNotifier{}}
}

func (f *fixture) apply(t *testing.T, student, program string, status application.Status) {
	t.Helper()
	app, err := application.NewApplication(application.NewApplicationParams{
		StudentID:         shared.StudentID(student),
		ProgramID:         shared.ProgramID(program),
		PersonalStatement: "I like it",
	}, today.Add(-48*time.Hour))
	require.NoError(t, err)
	if status != application.StatusPending {
		_, err = app.ChangeStatus(status, "", today.Add(-24*time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, f.store.Applications().Create(context.Background(), app))
}

type recordingNotifier struct {
	mu     sync.Mutex
	params []notification.NewNotificationParams
}

func (n *recordingNotifier) Notify(_ context.Context, p notification.NewNotificationParams) (*notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.params = append(n.params, p)
	return notification.NewNotification(p, today)
}

func (n *recordingNotifier) recipients() []string {
	out := make([]string, len(n.params))
	for i, p := range n.params {
		out[i] = p.RecipientID.String()
	}
	return out
}

type mapLedger struct {
	seen map[string]bool
}

func (l *mapLedger) MarkOnce(_ context.Context, deadlineID, studentID string, _ time.Duration) (bool, error) {
	key := deadlineID + ":" + studentID
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

func newReminderJob(f *fixture, ledger ReminderLedger) *DeadlineRemindersJob {
	job := NewDeadlineRemindersJob(f.store.Catalog(), f.store.Applications(), f.notifier, ledger,
		config.LoadFeatureFlags(), nil, DeadlineRemindersConfig{})
	job.now = func() time.Time { return today }
	return job
}

func TestDeadlineReminders_PendingStudentsAtInstitution(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "alice", "cs", application.StatusPending)
	f.apply(t, "alice", "ma", application.StatusPending)
	f.apply(t, "bob", "ma", application.StatusPending)
	f.apply(t, "carol", "cs", application.StatusApproved)
	f.apply(t, "dave", "ee", application.StatusPending)

	f.store.Catalog().AddDeadline(catalog.Deadline{
		ID: "dl-1", Title: "First semester intake", InstitutionID: "uz",
		Date: today.Add(3 * 24 * time.Hour), IsActive: true,
	})

	sent, err := newReminderJob(f, nil).remind(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"alice", "bob"}, f.notifier.recipients())
	p := f.notifier.params[0]
	assert.Equal(t, notification.NotificationTypeDeadline, p.Type)
	assert.Equal(t, "Important Deadline", p.Title)
	assert.Equal(t, "New deadline for First semester intake: 2026-03-05", p.Message)
}

func TestDeadlineReminders_NoInstitutionMeansEveryone(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "alice", "cs", application.StatusPending)
	f.apply(t, "dave", "ee", application.StatusPending)
	f.store.Catalog().AddDeadline(catalog.Deadline{
		ID: "dl-all", Title: "Scholarship forms", Date: today.Add(24 * time.Hour), IsActive: true,
	})

	sent, err := newReminderJob(f, nil).remind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"alice", "dave"}, f.notifier.recipients())
}

func TestDeadlineReminders_OutsideWindowOrInactive(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "alice", "cs", application.StatusPending)
	f.store.Catalog().AddDeadline(catalog.Deadline{
		ID: "far", Title: "Next year", InstitutionID: "uz", Date: today.Add(30 * 24 * time.Hour), IsActive: true,
	})
	f.store.Catalog().AddDeadline(catalog.Deadline{
		ID: "off", Title: "Cancelled", InstitutionID: "uz", Date: today.Add(24 * time.Hour), IsActive: false,
	})

	sent, err := newReminderJob(f, nil).remind(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestDeadlineReminders_LedgerPreventsRepeats(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "alice", "cs", application.StatusPending)
	f.store.Catalog().AddDeadline(catalog.Deadline{
		ID: "dl-1", Title: "Intake", InstitutionID: "uz", Date: today.Add(24 * time.Hour), IsActive: true,
	})
	job := newReminderJob(f, &mapLedger{seen: map[string]bool{}})

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, f.notifier.params, 1)
}

func TestDeadlineReminders_FeatureDisabled(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "alice", "cs", application.StatusPending)
	f.store.Catalog().AddDeadline(catalog.Deadline{
		ID: "dl-1", Title: "Intake", InstitutionID: "uz", Date: today.Add(24 * time.Hour), IsActive: true,
	})
	job := newReminderJob(f, nil)
	require.NoError(t, job.features.DisableFeature(config.FeatureNotifyDeadlines))

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, f.notifier.params)
}

// ──────────────────────────────────────────────────────────────────────────────
// Warm pools
// ──────────────────────────────────────────────────────────────────────────────

type recordingWarmer struct {
	refreshed []shared.ProgramID
	failFor   shared.ProgramID
}

func (w *recordingWarmer) Refresh(_ context.Context, id shared.ProgramID) error {
	if id == w.failFor {
		return errors.New("redis timeout")
	}
	w.refreshed = append(w.refreshed, id)
	return nil
}

func TestWarmPools_RefreshesEveryProgram(t *testing.T) {
	f := newFixture(t)
	warmer := &recordingWarmer{failFor: "ma"}
	job := NewWarmPoolsJob(f.store.Catalog(), warmer, config.LoadFeatureFlags(), nil)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ElementsMatch(t, []shared.ProgramID{"cs", "ee"}, warmer.refreshed)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Programs)
	assert.Equal(t, 2, stats.Refreshed)
	assert.Equal(t, 1, stats.Failed)
}

func TestWarmPools_SkippedWhenCacheDisabled(t *testing.T) {
	f := newFixture(t)
	warmer := &recordingWarmer{}
	flags := config.LoadFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureScoringPoolCache))

	require.NoError(t, NewWarmPoolsJob(f.store.Catalog(), warmer, flags, nil).Run(context.Background()))
	assert.Empty(t, warmer.refreshed)
}
