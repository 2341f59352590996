package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/internal/application/query"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/memory"
)

const seedJSON = `{
  "institutions": [{"id": "uz", "name": "University of Zimbabwe", "location": "Harare"}],
  "programs": [
    {"id": "cs", "code": "BSC-CS", "name": "Computer Science", "faculty_id": "sci", "institution_id": "uz", "min_points_required": 12},
    {"id": "math", "code": "BSC-MATH", "name": "Mathematics", "faculty_id": "sci", "institution_id": "uz", "min_points_required": 16}
  ],
  "deadlines": [{"id": "d1", "title": "Main intake", "institution_id": "uz", "date": "2030-03-01T00:00:00Z", "semester": "FALL"}],
  "profiles": [
    {"student_id": "s1", "exam_board": "ZIMSEC", "o_level_subjects": 6, "a_level_points": 14},
    {"student_id": "s2", "exam_board": "zimsec", "o_level_subjects": 5, "a_level_points": 10}
  ],
  "applications": [
    {"student_id": "s1", "student_name": "Tariro", "program_id": "cs"},
    {"student_id": "s2", "program_id": "cs", "status": "Waitlisted"}
  ]
}`

func testApp(t *testing.T) (*app, *memory.Store) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("MAIL_RELAY_URL", "")
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOG_LEVEL", "error")

	store := memory.NewStore()
	a, err := newApp(context.Background(), &globalOptions{memory: true}, appOptions{memoryStore: store})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, store
}

func seed(t *testing.T, a *app) *seedResult {
	t.Helper()
	res, err := runSeed(context.Background(), a, strings.NewReader(seedJSON))
	require.NoError(t, err)
	return res
}

func TestNewApp_InMemoryWithoutRedis(t *testing.T) {
	a, _ := testApp(t)

	assert.Nil(t, a.cache)
	assert.Nil(t, a.pools)
	assert.Nil(t, a.email)
	assert.Nil(t, a.stores.conn)
	assert.NotNil(t, a.lifecycle)
	assert.NotNil(t, a.recommends)
}

func TestSeed(t *testing.T) {
	a, _ := testApp(t)
	res := seed(t, a)

	assert.Equal(t, 1, res.Institutions)
	assert.Equal(t, 2, res.Programs)
	assert.Equal(t, 1, res.Deadlines)
	assert.Equal(t, 2, res.Profiles)
	require.Len(t, res.Applications, 2)

	ctx := context.Background()
	program, err := a.stores.catalog.GetProgram(ctx, "cs")
	require.NoError(t, err)
	assert.Equal(t, "University of Zimbabwe", program.InstitutionName)

	waitlisted, err := a.stores.applications.GetByID(ctx, shared.ApplicationID(res.Applications["s2/cs"]))
	require.NoError(t, err)
	assert.Equal(t, "Waitlisted", waitlisted.Status.String())
}

func TestSeed_RejectsUnknownFields(t *testing.T) {
	a, _ := testApp(t)

	_, err := runSeed(context.Background(), a, strings.NewReader(`{"universities": []}`))
	assert.Error(t, err)
}

func TestTransition_NotifiesStudent(t *testing.T) {
	a, store := testApp(t)
	res := seed(t, a)
	id := res.Applications["s1/cs"]

	var out bytes.Buffer
	err := runTransition(context.Background(), a, &transitionOptions{
		applicationID: id,
		status:        "approved",
		actor:         "registrar",
		notes:         "Strong results",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, id+": Pending -> Approved\n", out.String())

	notes, err := store.Notifications().ListByRecipient(context.Background(), notification.RecipientID("s1"), 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, notification.NotificationTypeStatusChange, notes[0].Type)

	err = runTransition(context.Background(), a, &transitionOptions{
		applicationID: id, status: "Rejected", actor: "registrar",
	}, &out)
	assert.True(t, shared.IsInvalidTransition(err))
}

func TestTransition_UnknownStatus(t *testing.T) {
	a, _ := testApp(t)

	err := runTransition(context.Background(), a, &transitionOptions{
		applicationID: "any", status: "Accepted", actor: "registrar",
	}, &bytes.Buffer{})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestRecommend_ForApplication(t *testing.T) {
	a, _ := testApp(t)
	res := seed(t, a)

	var out bytes.Buffer
	require.NoError(t, runRecommend(context.Background(), a, &recommendOptions{
		applicationID: res.Applications["s1/cs"],
	}, &out))

	var got query.ApplicationRecommendationsResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))

	// 14 points against a pool of {14, 10}: nobody scored higher.
	assert.Equal(t, shared.ProgramID("cs"), got.Current.ProgramID)
	assert.Equal(t, 2, got.Current.TotalApplicants)
	assert.InDelta(t, 0.8, got.Current.AcceptanceProbability, 1e-9)

	// Mathematics has no applicants and a higher minimum.
	require.Len(t, got.Alternatives, 1)
	assert.Equal(t, shared.ProgramID("math"), got.Alternatives[0].ProgramID)
	assert.InDelta(t, 0.3, got.Alternatives[0].AcceptanceProbability, 1e-9)
}

func TestRecommend_ForCatalog(t *testing.T) {
	a, _ := testApp(t)
	seed(t, a)

	var out bytes.Buffer
	require.NoError(t, runRecommend(context.Background(), a, &recommendOptions{studentID: "s1"}, &out))

	var got []query.ProgramRecommendationDTO
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, shared.ProgramID("cs"), got[0].ProgramID)
	assert.GreaterOrEqual(t, got[0].AcceptanceProbability, got[1].AcceptanceProbability)
}

func TestRootCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "admissions version")

	cmd = rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"recommend"})
	assert.ErrorContains(t, cmd.Execute(), "exactly one of --application or --student")
}

func TestExitCode(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("transition: %w", err) }

	assert.Equal(t, exitValidation, exitCode(wrap(shared.ErrInvalidStatus)))
	assert.Equal(t, exitNotFound, exitCode(wrap(shared.ErrApplicationNotFound)))
	assert.Equal(t, exitForbidden, exitCode(wrap(shared.ErrActorNotPermitted)))
	assert.Equal(t, exitRefused, exitCode(wrap(shared.ErrApplicationLocked)))
	assert.Equal(t, exitRefused, exitCode(wrap(shared.ErrDuplicateApplication)))
	assert.Equal(t, exitRefused, exitCode(wrap(shared.ErrInvalidTransition)))
	assert.Equal(t, exitRefused, exitCode(wrap(shared.ErrVersionConflict)))
	assert.Equal(t, exitFailure, exitCode(errors.New("connection reset")))
}

func TestNewApp_MemoryRefusedInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://admissions@localhost:5432/admissions")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("LOG_LEVEL", "error")

	_, err := newApp(context.Background(), &globalOptions{memory: true}, appOptions{})
	assert.ErrorContains(t, err, "--memory cannot be used in production")
}

func TestInbox_MarkRead(t *testing.T) {
	a, store := testApp(t)
	res := seed(t, a)
	ctx := context.Background()

	require.NoError(t, runTransition(ctx, a, &transitionOptions{
		applicationID: res.Applications["s1/cs"], status: "Deferred", actor: "registrar",
	}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, runInbox(ctx, a, &inboxOptions{user: "s1", limit: 10, markRead: true}, &out))

	var inbox query.InboxResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &inbox))
	assert.Equal(t, 1, inbox.UnreadCount)

	notes, err := store.Notifications().ListByRecipient(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].IsRead)
}

func TestApplicationsAndAudit(t *testing.T) {
	a, _ := testApp(t)
	res := seed(t, a)
	ctx := context.Background()

	apps, err := a.applications().ListByStudent(ctx, query.ListApplicationsQuery{StudentID: "s2"})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Waitlisted", apps[0].Status)

	// The seeded status went through a real transition, so it is audited.
	entries, err := a.applications().AuditTrail(ctx, shared.ApplicationID(res.Applications["s2/cs"]), reviewer("registrar"), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
