// Package scheduler runs the worker's background jobs (reference pool
// warm-up and deadline reminders) on cron schedules. Specs use the standard
// five fields or descriptors such as "@every 10m".
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// Config configures a Scheduler.
type Config struct {
	Logger *logger.Logger
	// Timezone for schedules; UTC when nil.
	Timezone *time.Location
	// JobTimeout bounds one run; zero means no limit.
	JobTimeout time.Duration
	// MaxHistorySize is how many results History can return.
	MaxHistorySize int
}

func DefaultConfig() Config {
	return Config{Timezone: time.UTC, JobTimeout: 5 * time.Minute, MaxHistorySize: 200}
}

// Scheduler owns a cron runner and the registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	past    *history
	runCtx  context.Context
	stop    context.CancelFunc
}

func New(cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("scheduler"))
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 200
	}

	cl := cronLogger{log: log}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(cfg.Timezone), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		log:     log,
		timeout: cfg.JobTimeout,
		entries: make(map[string]*entry),
		past:    newHistory(cfg.MaxHistorySize),
	}
}

// Register schedules job. Names must be unique.
func (s *Scheduler) Register(job Job, spec string) error {
	if job == nil {
		return ErrNilJob
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, spec: spec}
	e.cronID = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(e) }))
	s.entries[name] = e

	s.log.Info("job registered", logger.String("job", name), logger.String("schedule", spec))
	return nil
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e, nil
}

// EnableJob resumes scheduled runs of a job.
func (s *Scheduler) EnableJob(name string) error {
	e, err := s.lookup(name)
	if err == nil {
		e.disabled.Store(false)
	}
	return err
}

// DisableJob pauses scheduled runs of a job. RunNow still works.
func (s *Scheduler) DisableJob(name string) error {
	e, err := s.lookup(name)
	if err == nil {
		e.disabled.Store(true)
	}
	return err
}

// Start runs jobs on their schedules until Stop. Runs get a context derived
// from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrSchedulerAlreadyRunning
	}
	s.runCtx, s.stop = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.entries)))
	return nil
}

// Stop cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop := s.stop
	s.stop, s.runCtx = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return ErrSchedulerNotRunning
	}

	stopped := s.cron.Stop()
	stop()
	select {
	case <-stopped.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// fire is the cron callback. A run still in progress makes it a no-op.
func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || e.disabled.Load() {
		return
	}
	if _, err := s.run(ctx, e, false); errors.Is(err, ErrJobBusy) {
		s.log.Warn("previous run still in progress, skipping", logger.String("job", e.job.Name()))
	}
}

// RunNow runs a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	res, err := s.run(ctx, e, true)
	if res == nil {
		return nil, err
	}
	return res, res.Error
}

func (s *Scheduler) run(ctx context.Context, e *entry, manual bool) (*JobResult, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrJobBusy
	}
	defer e.busy.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	name := e.job.Name()
	res := &JobResult{JobName: name, Manual: manual, StartedAt: time.Now()}
	res.Error = e.job.Run(ctx)
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Success = res.Error == nil

	e.runs.Add(1)
	if !res.Success {
		e.fails.Add(1)
	}
	e.last.Store(res)
	s.mu.Lock()
	s.past.add(*res)
	s.mu.Unlock()
	metrics.RecordJobRun(name, res.Duration, res.Success)

	if res.Success {
		s.log.Info("job completed", logger.String("job", name), logger.Duration("duration", res.Duration))
	} else {
		s.log.Error("job failed", logger.String("job", name), logger.Duration("duration", res.Duration), logger.Err(res.Error))
	}
	return res, nil
}

// ListJobs reports the registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		info := JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Enabled:     !e.disabled.Load(),
			Schedule:    e.spec,
			NextRun:     s.cron.Entry(e.cronID).Next,
			RunCount:    e.runs.Load(),
			FailCount:   e.fails.Load(),
		}
		if last := e.last.Load(); last != nil {
			cp := *last
			info.LastResult = &cp
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns up to limit recent results, newest first. A limit of zero
// returns everything kept.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.past.latest(limit)
}
