// Package lifecycle contains the write side of the admissions workflow:
// submitting, editing, transitioning and deleting applications, and the
// reviewer actions that annotate them. Every write is audited inside the same
// unit of work as the change itself.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/message"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
	"github.com/admissions-hub/admissions-core/pkg/logger"
	"github.com/admissions-hub/admissions-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies are the collaborators of the Manager.
type Dependencies struct {
	Applications application.Repository
	Transactor   application.Transactor
	Audit        audit.Sink
	Catalog      catalog.Repository
	Messages     message.Repository
	Events       shared.EventPublisher
	Logger       *logger.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Config contains tuning for the Manager.
type Config struct {
	// MaxConflictRetries bounds attempts when a save hits a concurrent modification.
	MaxConflictRetries int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{MaxConflictRetries: 3}
}

// Manager validates and applies application lifecycle operations.
type Manager struct {
	apps     application.Repository
	tx       application.Transactor
	audit    audit.Sink
	catalog  catalog.Repository
	messages message.Repository
	events   shared.EventPublisher
	log      *logger.Logger
	now      func() time.Time
	retrier  *retry.Retrier
}

// NewManager creates a new Manager.
func NewManager(deps Dependencies, cfg Config) *Manager {
	if cfg.MaxConflictRetries < 1 {
		cfg = DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Manager{
		apps:     deps.Applications,
		tx:       deps.Transactor,
		audit:    deps.Audit,
		catalog:  deps.Catalog,
		messages: deps.Messages,
		events:   deps.Events,
		log:      deps.Logger.With(logger.Component("lifecycle")),
		now:      deps.Now,
		retrier:  retry.ConflictRetrier(cfg.MaxConflictRetries, shared.IsConflict),
	}
}

// unitOfWork collects the events produced by one attempt of an operation.
// They are published only after the attempt commits.
type unitOfWork struct {
	events []shared.Event
}

func (u *unitOfWork) emit(e shared.Event) {
	u.events = append(u.events, e)
}

// run executes fn in a transaction, retrying from scratch on version conflicts.
// Events gathered by the successful attempt are published after commit.
func (m *Manager) run(ctx context.Context, op string, fn func(ctx context.Context, uow *unitOfWork) error) error {
	var uow *unitOfWork
	attempt := 0

	err := m.retrier.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.RecordConflictRetry()
			m.log.Debug("retrying after concurrent modification",
				logger.Operation(op), logger.Int("attempt", attempt))
		}
		uow = &unitOfWork{}
		return m.tx.WithinTx(ctx, func(ctx context.Context) error {
			return fn(ctx, uow)
		})
	})
	if err != nil {
		return err
	}

	for _, e := range uow.events {
		m.publish(e)
	}
	return nil
}

// record appends an audit entry. Any failure aborts the caller's transaction.
func (m *Manager) record(ctx context.Context, actor application.Actor, action audit.ActionKind, description string, md map[string]any) error {
	entry, err := audit.NewEntry(actor.ID, action, description, md, m.now())
	if err != nil {
		return err
	}
	if err := m.audit.Append(ctx, entry); err != nil {
		metrics.RecordAuditFailure(string(action))
		return fmt.Errorf("%w: %w", shared.ErrAuditWriteFailed, err)
	}
	return nil
}

// publish hands an event to the bus. Delivery problems never fail the
// already committed operation.
func (m *Manager) publish(e shared.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(e); err != nil {
		m.log.Warn("failed to publish event",
			logger.String("event_type", string(e.EventType())),
			logger.ApplicationID(e.AggregateID()),
			logger.Err(err),
		)
		return
	}
	metrics.RecordEventPublished(string(e.EventType()))
}

// load fetches and row-locks an application for the running transaction.
func (m *Manager) load(ctx context.Context, id shared.ApplicationID) (*application.Application, error) {
	if id.IsEmpty() {
		return nil, shared.NewDomainError("lifecycle", "Load", shared.ErrInvalidID, "application id is required")
	}
	return m.apps.GetForUpdate(ctx, id)
}

func statusChangeMetadata(app *application.Application, from, to application.Status) map[string]any {
	return map[string]any{
		audit.MetaApplicationID: app.ID.String(),
		audit.MetaOldStatus:     from.String(),
		audit.MetaNewStatus:     to.String(),
		audit.MetaProgram:       app.Description(),
	}
}

func statusChangeDescription(from, to application.Status) string {
	return fmt.Sprintf("Changed application status from %s to %s", from, to)
}
