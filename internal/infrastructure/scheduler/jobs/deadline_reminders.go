package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
	"github.com/admissions-hub/admissions-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEADLINE REMINDERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Notifier creates a notification.
type Notifier interface {
	Notify(ctx context.Context, params notification.NewNotificationParams) (*notification.Notification, error)
}

// ReminderLedger remembers reminders across runs. MarkOnce reports true the
// first time a pair is seen.
type ReminderLedger interface {
	MarkOnce(ctx context.Context, deadlineID, studentID string, ttl time.Duration) (bool, error)
}

// DeadlineRemindersConfig contains configuration for the reminder job.
type DeadlineRemindersConfig struct {
	// Window is how far ahead deadlines are reminded (default 7 days).
	Window time.Duration

	// PageSize is the batch size when scanning applications.
	PageSize int

	// Location decides calendar days for the window and the dates in
	// reminder messages (default UTC).
	Location *time.Location
}

// DefaultDeadlineRemindersConfig returns sensible defaults.
func DefaultDeadlineRemindersConfig() DeadlineRemindersConfig {
	return DeadlineRemindersConfig{
		Window:   7 * 24 * time.Hour,
		PageSize: 100,
	}
}

// DeadlineRemindersJob sends a DEADLINE notification to every student with a
// pending application at the institution of an approaching deadline.
type DeadlineRemindersJob struct {
	catalog  catalog.Repository
	apps     application.Repository
	notifier Notifier
	ledger   ReminderLedger
	features *config.FeatureFlags
	logger   *logger.Logger
	config   DeadlineRemindersConfig
	now      func() time.Time
}

// NewDeadlineRemindersJob creates a new DeadlineRemindersJob. ledger may be
// nil, in which case a pair is only deduplicated within one run.
func NewDeadlineRemindersJob(
	catalogRepo catalog.Repository,
	apps application.Repository,
	notifier Notifier,
	ledger ReminderLedger,
	features *config.FeatureFlags,
	log *logger.Logger,
	cfg DeadlineRemindersConfig,
) *DeadlineRemindersJob {
	def := DefaultDeadlineRemindersConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DeadlineRemindersJob{
		catalog:  catalogRepo,
		apps:     apps,
		notifier: notifier,
		ledger:   ledger,
		features: features,
		logger:   log.With(logger.Component("deadline_reminders")),
		config:   cfg,
		now:      time.Now,
	}
}

// Name returns the job name.
func (j *DeadlineRemindersJob) Name() string { return "deadline_reminders" }

// Description returns a human-readable description.
func (j *DeadlineRemindersJob) Description() string {
	return "Reminds students with pending applications about approaching deadlines"
}

// Run executes the job and returns nil when every reminder was delivered.
func (j *DeadlineRemindersJob) Run(ctx context.Context) error {
	_, err := j.remind(ctx)
	return err
}

func (j *DeadlineRemindersJob) remind(ctx context.Context) (int, error) {
	now := j.now().UTC()
	deadlines, err := j.catalog.UpcomingDeadlines(ctx, "", now)
	if err != nil {
		return 0, fmt.Errorf("list deadlines: %w", err)
	}

	// A deadline anywhere on the last day of the window counts.
	horizon := timeutil.EndOfDay(now.Add(j.config.Window), j.config.Location)
	sent := 0
	var errs []error

	for _, d := range deadlines {
		if d.Date.After(horizon) {
			break
		}
		students, err := j.pendingStudents(ctx, d.InstitutionID)
		if err != nil {
			errs = append(errs, fmt.Errorf("deadline %s: %w", d.ID, err))
			continue
		}

		for _, studentID := range students {
			if !j.features.IsEnabled(config.FeatureNotifyDeadlines, &config.FeatureContext{UserID: studentID}) {
				continue
			}
			first, err := j.markOnce(ctx, d, studentID, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !first {
				continue
			}
			_, err = j.notifier.Notify(ctx, notification.NewNotificationParams{
				RecipientID: notification.RecipientID(studentID),
				Type:        notification.NotificationTypeDeadline,
				Title:       "Important Deadline",
				Message:     fmt.Sprintf("New deadline for %s: %s", d.Title, timeutil.FormatDate(d.Date, j.config.Location)),
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("notify %s: %w", studentID, err))
				continue
			}
			sent++
		}
	}

	j.logger.Info("deadline reminders sent",
		logger.Int("deadlines", len(deadlines)),
		logger.Int("sent", sent),
		logger.Int("errors", len(errs)),
	)
	return sent, errors.Join(errs...)
}

// markOnce keeps the ledger entry until the day after the deadline.
func (j *DeadlineRemindersJob) markOnce(ctx context.Context, d catalog.Deadline, studentID string, now time.Time) (bool, error) {
	if j.ledger == nil {
		return true, nil
	}
	ttl := timeutil.EndOfDay(d.Date, j.config.Location).Sub(now) + 24*time.Hour
	return j.ledger.MarkOnce(ctx, d.ID, studentID, ttl)
}

// pendingStudents returns the distinct students with a Pending application
// to any program of the institution, sorted. An empty institutionID means
// every institution.
func (j *DeadlineRemindersJob) pendingStudents(ctx context.Context, institutionID string) ([]string, error) {
	programs, err := j.catalog.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, p := range programs {
		if institutionID != "" && p.InstitutionID != institutionID {
			continue
		}
		if err := j.collectPending(ctx, p.ID, seen); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (j *DeadlineRemindersJob) collectPending(ctx context.Context, programID shared.ProgramID, seen map[string]struct{}) error {
	opts := application.ListOptions{Status: application.StatusPending, Limit: j.config.PageSize}
	for {
		page, err := j.apps.ListByProgram(ctx, programID, opts)
		if err != nil {
			return err
		}
		for _, a := range page {
			seen[a.StudentID.String()] = struct{}{}
		}
		if len(page) < opts.Limit {
			return nil
		}
		opts.Offset += opts.Limit
	}
}
