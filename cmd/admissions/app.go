package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/application/eventhandler"
	"github.com/admissions-hub/admissions-core/internal/application/lifecycle"
	"github.com/admissions-hub/admissions-core/internal/application/query"
	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/message"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/external/mailrelay"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/messaging"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/memory"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/postgres"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/redis"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORES
// ══════════════════════════════════════════════════════════════════════════════

// catalogSeeder writes reference data. Both backends upsert.
type catalogSeeder interface {
	AddInstitution(ctx context.Context, inst catalog.Institution) error
	AddFaculty(ctx context.Context, f catalog.Faculty) error
	AddDepartment(ctx context.Context, d catalog.Department) error
	AddProgram(ctx context.Context, p catalog.Program) error
	AddDeadline(ctx context.Context, d catalog.Deadline) error
}

// stores is one persistence backend.
type stores struct {
	applications  application.Repository
	pools         application.ReferencePoolSource
	transactor    application.Transactor
	audit         audit.Sink
	auditReader   audit.Reader
	catalog       catalog.Repository
	profiles      applicant.Repository
	messages      message.Repository
	notifications notification.Repository
	seeder        catalogSeeder

	// Set only for PostgreSQL.
	conn *postgres.Connection
}

func memoryStores(store *memory.Store) stores {
	apps := store.Applications()
	return stores{
		applications:  apps,
		pools:         apps,
		transactor:    store,
		audit:         store.Audit(),
		auditReader:   store.Audit(),
		catalog:       store.Catalog(),
		profiles:      store.Profiles(),
		messages:      store.Messages(),
		notifications: store.Notifications(),
		seeder:        memorySeeder{store.Catalog()},
	}
}

func postgresStores(conn *postgres.Connection) stores {
	apps := postgres.NewApplicationRepository(conn)
	catalogRepo := postgres.NewCatalogRepository(conn)
	auditLog := postgres.NewAuditLog(conn)
	return stores{
		applications:  apps,
		pools:         apps,
		transactor:    conn,
		audit:         auditLog,
		auditReader:   auditLog,
		catalog:       catalogRepo,
		profiles:      postgres.NewProfileRepository(conn),
		messages:      postgres.NewMessageRepository(conn),
		notifications: postgres.NewNotificationRepository(conn),
		seeder:        catalogRepo,
		conn:          conn,
	}
}

// memorySeeder adapts the in-memory catalog, which keeps programs
// denormalized and has no faculty or department tables.
type memorySeeder struct {
	repo *memory.CatalogRepository
}

func (s memorySeeder) AddInstitution(_ context.Context, inst catalog.Institution) error {
	s.repo.AddInstitution(inst)
	return nil
}

func (s memorySeeder) AddFaculty(context.Context, catalog.Faculty) error { return nil }

func (s memorySeeder) AddDepartment(context.Context, catalog.Department) error { return nil }

func (s memorySeeder) AddProgram(_ context.Context, p catalog.Program) error {
	return s.repo.AddProgram(p)
}

func (s memorySeeder) AddDeadline(_ context.Context, d catalog.Deadline) error {
	s.repo.AddDeadline(d)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// eventBus is a closable shared.EventBus.
type eventBus interface {
	shared.EventBus
	Close() error
}

// app holds everything a subcommand needs.
type app struct {
	cfg *config.Config
	log *logger.Logger

	stores stores
	cache  *redis.Cache
	pools  *redis.ReferencePoolCache
	email  *mailrelay.Client

	bus      eventBus
	notifier *eventhandler.Notifier

	lifecycle  *lifecycle.Manager
	recommends *query.RecommendationHandler

	closers []func()
}

// appOptions tune newApp per subcommand.
type appOptions struct {
	// handleLocally registers the notification handlers on this process's
	// bus. Short-lived commands leave that to the worker when Redis
	// carries events between processes.
	handleLocally bool

	// memoryStore, when set, replaces the backend selection.
	memoryStore *memory.Store
}

func newApp(ctx context.Context, global *globalOptions, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Observability.LogLevel
	if global.logLevel != "" {
		level = global.logLevel
	}
	log := logger.New(logger.Options{
		Output:    os.Stderr,
		Level:     logger.ParseLevel(level),
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("app", cfg.App.Name))

	a := &app{cfg: cfg, log: log}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. PERSISTENCE
	// ─────────────────────────────────────────────────────────────────────────
	switch {
	case opts.memoryStore != nil:
		a.stores = memoryStores(opts.memoryStore)
	case global.memory && cfg.IsProduction():
		return nil, errors.New("--memory cannot be used in production")
	case global.memory || cfg.Database.URL == "":
		log.Info("using in-memory store")
		a.stores = memoryStores(memory.NewStore())
	default:
		conn, err := postgres.NewConnection(ctx, postgres.ConfigFromApp(cfg.Database))
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		a.stores = postgresStores(conn)
		log.Info("connected to PostgreSQL")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	pools := a.stores.pools
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, continuing without cache", logger.Err(err))
		} else {
			a.cache = cache
			a.closers = append(a.closers, func() { _ = cache.Close() })
			a.pools = redis.NewReferencePoolCache(cache, a.stores.pools, cfg.Scoring.PoolCacheTTL, cfg.Features, log)
			pools = a.pools
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. NOTIFICATIONS
	// ─────────────────────────────────────────────────────────────────────────
	var email notification.Channel
	if cfg.Mail.RelayURL != "" {
		mailCfg := mailrelay.DefaultConfig(cfg.Mail.RelayURL)
		mailCfg.APIKey = cfg.Mail.RelayToken
		mailCfg.Timeout = cfg.Mail.Timeout
		mailCfg.MaxAttempts = cfg.Mail.MaxAttempts
		mailCfg.Logger = log
		client, err := mailrelay.NewClient(mailCfg)
		if err != nil {
			return nil, a.fail(fmt.Errorf("create mail relay client: %w", err))
		}
		a.email = client
		email = client
	}
	a.notifier = eventhandler.NewNotifier(a.stores.notifications, email, cfg.Features, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus, err := a.newEventBus(opts.handleLocally)
	if err != nil {
		return nil, a.fail(err)
	}
	a.bus = bus
	a.closers = append(a.closers, func() { _ = bus.Close() })

	if opts.handleLocally || a.cache == nil {
		if err := eventhandler.Register(bus,
			eventhandler.NewOnStatusChangedHandler(a.notifier, cfg.Features, log),
			eventhandler.NewOnReviewerActionHandler(a.notifier, log),
		); err != nil {
			return nil, a.fail(fmt.Errorf("register event handlers: %w", err))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	a.lifecycle = lifecycle.NewManager(lifecycle.Dependencies{
		Applications: a.stores.applications,
		Transactor:   a.stores.transactor,
		Audit:        a.stores.audit,
		Catalog:      a.stores.catalog,
		Messages:     a.stores.messages,
		Events:       bus,
		Logger:       log,
	}, lifecycle.Config{MaxConflictRetries: cfg.Lifecycle.MaxConflictRetries})

	a.recommends = query.NewRecommendationHandler(
		a.stores.applications,
		pools,
		a.stores.catalog,
		a.stores.profiles,
		cfg.Features,
		query.RecommendationConfig{
			AlternativeLimit: cfg.Scoring.AlternativeLimit,
			CatalogLimit:     cfg.Scoring.CatalogLimit,
			Parallelism:      cfg.Scoring.Parallelism,
		},
	)

	return a, nil
}

// newEventBus picks Redis pub/sub when the cache is up so the worker sees
// events raised by other processes. Otherwise events stay in-process and
// are handled synchronously so a short command finishes its notifications
// before exiting.
func (a *app) newEventBus(longRunning bool) (eventBus, error) {
	local := messaging.LocalConfig{
		Logger: a.log,
		Middlewares: []messaging.Middleware{
			messaging.RetryMiddleware(3, 100*time.Millisecond),
			messaging.LoggingMiddleware(a.log),
		},
	}
	if a.cache == nil {
		return messaging.NewLocalBus(local), nil
	}
	if longRunning {
		local.Workers = 4
	}

	bus, err := messaging.NewRedisBus(messaging.RedisConfig{
		Transport: messaging.NewGoRedisTransport(a.cache.Client()),
		Channel:   a.cfg.Redis.KeyPrefix + "events",
		Local:     local,
		Logger:    a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis event bus: %w", err)
	}
	return bus, nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	cfg := redis.DefaultConfig()
	cfg.URL = c.URL
	if c.KeyPrefix != "" {
		cfg.KeyPrefix = c.KeyPrefix
	}
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Password = c.Password
	cfg.DB = c.DB
	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		cfg.MinIdleConns = c.MinIdleConns
	}
	if c.DialTimeout > 0 {
		cfg.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	return cfg
}

// fail releases whatever was opened before err.
func (a *app) fail(err error) error {
	a.Close()
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.log.Sync()
}

func (a *app) applications() *query.ApplicationHandler {
	return query.NewApplicationHandler(a.stores.applications, a.stores.auditReader)
}

// reviewer builds the acting staff member for CLI-driven reviews.
func reviewer(id string) application.Actor {
	return application.Actor{ID: id, Name: id, CanReviewStatus: true}
}
