package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/admissions-hub/admissions-core/internal/infrastructure/persistence/redis"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/scheduler"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/scheduler/jobs"
	"github.com/admissions-hub/admissions-core/internal/interface/http"
	"github.com/admissions-hub/admissions-core/internal/interface/http/handlers"
	"github.com/admissions-hub/admissions-core/pkg/circuitbreaker"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

type workerOptions struct {
	once string
}

func workerCmd(global *globalOptions) *cobra.Command {
	opts := &workerOptions{}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run notification handlers, scheduled jobs and the ops endpoint",
		Long: `worker consumes lifecycle events (from Redis when available) and turns them
into notifications, warms reference-pool caches, sends deadline reminders
and serves /healthz, /readyz, /jobs and /metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.once, "once", "", "Run the named job once and exit")

	return cmd
}

func runWorker(ctx context.Context, global *globalOptions, opts *workerOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. WIRING
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newApp(ctx, global, appOptions{handleLocally: true})
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.log.With(logger.Component("worker"))
	log.Info("starting admissions worker",
		logger.String("env", string(a.cfg.App.Environment)),
		logger.String("version", a.cfg.App.Version),
		logger.Bool("redis", a.cache != nil),
		logger.Bool("email", a.email != nil),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := newScheduler(a)
	if err != nil {
		return err
	}

	if opts.once != "" {
		res, err := sched.RunNow(ctx, opts.once)
		if res != nil {
			log.Info("job finished",
				logger.String("job", res.JobName),
				logger.Bool("success", res.Success),
				logger.Duration("duration", res.Duration),
			)
		}
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. OPS SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := http.NewServer(opsConfig(a), http.Dependencies{
		Logger: a.log,
		Health: newHealthChecker(a),
		Jobs:   sched,
		Flags:  a.cfg.Features,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Worker.Enabled {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Info("scheduled jobs disabled")
	}

	g.Go(func() error {
		return server.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
		defer cancel()

		if sched.IsRunning() {
			if err := sched.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("stop scheduler: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}

// newScheduler registers the jobs this deployment can run. Pool warming
// needs the Redis cache; reminders use the Redis ledger when it is there.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Config{
		Logger:     a.log,
		Timezone:   a.cfg.App.Location,
		JobTimeout: a.cfg.Worker.JobTimeout,
	})

	if a.pools != nil {
		warm := jobs.NewWarmPoolsJob(a.stores.catalog, a.pools, a.cfg.Features, a.log)
		if err := sched.Register(warm, a.cfg.Worker.PoolWarmSchedule); err != nil {
			return nil, fmt.Errorf("register %s: %w", warm.Name(), err)
		}
	}

	var ledger jobs.ReminderLedger
	if a.cache != nil {
		ledger = redis.NewReminderLedger(a.cache)
	}
	reminders := jobs.NewDeadlineRemindersJob(
		a.stores.catalog,
		a.stores.applications,
		a.notifier,
		ledger,
		a.cfg.Features,
		a.log,
		jobs.DeadlineRemindersConfig{
			Window:   time.Duration(a.cfg.Worker.DeadlineReminderWindow) * 24 * time.Hour,
			Location: a.cfg.App.Location,
		},
	)
	if err := sched.Register(reminders, a.cfg.Worker.DeadlineReminderSchedule); err != nil {
		return nil, fmt.Errorf("register %s: %w", reminders.Name(), err)
	}

	return sched, nil
}

func opsConfig(a *app) http.Config {
	cfg := http.DefaultConfig()
	cfg.Port = a.cfg.Observability.MetricsPort
	cfg.EnableMetrics = a.cfg.Observability.MetricsEnabled
	cfg.ShutdownTimeout = a.cfg.App.ShutdownTimeout
	return cfg
}

// newHealthChecker treats the database as critical; the cache and mail relay
// only affect readiness.
func newHealthChecker(a *app) *handlers.Checker {
	checker := handlers.NewChecker(a.cfg.App.Version)
	if a.stores.conn != nil {
		checker.AddCheck("database", handlers.NewPingCheck(a.stores.conn))
	}
	if a.cache != nil {
		checker.AddOptionalCheck("redis", handlers.NewPingCheck(a.cache))
	}
	if a.email != nil {
		checker.AddOptionalCheck("mail_relay", handlers.NewBreakerCheck(func() bool {
			return a.email.State() == circuitbreaker.StateOpen
		}))
	}
	return checker
}
