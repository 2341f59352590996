package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/admissions-hub/admissions-core/pkg/logger"
)

var (
	ErrNilJob                  = errors.New("scheduler: job cannot be nil")
	ErrInvalidSchedule         = errors.New("scheduler: invalid schedule")
	ErrJobAlreadyExists        = errors.New("scheduler: job already exists")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrJobBusy                 = errors.New("scheduler: job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// Job is a unit of background work. Run gets a context that ends when the
// scheduler stops or the run times out.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// JobResult describes one run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Manual      bool
	Error       error
}

// JobInfo is a registered job as reported on the ops endpoint.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    string
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// entry is a registered job and its run statistics.
type entry struct {
	job      Job
	spec     string
	cronID   cron.EntryID
	disabled atomic.Bool
	// busy is held for the whole run, so scheduled and manual runs of the
	// same job never overlap.
	busy  atomic.Bool
	runs  atomic.Int64
	fails atomic.Int64
	last  atomic.Pointer[JobResult]
}

// history keeps the latest results in a fixed ring.
type history struct {
	buf  []JobResult
	next int
	full bool
}

func newHistory(size int) *history { return &history{buf: make([]JobResult, size)} }

func (h *history) add(r JobResult) {
	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// latest returns up to n results, newest first.
func (h *history) latest(n int) []JobResult {
	size := h.next
	if h.full {
		size = len(h.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]JobResult, n)
	for i := range out {
		out[i] = h.buf[(h.next-1-i+len(h.buf))%len(h.buf)]
	}
	return out
}

// cronLogger sends cron's own messages to the structured logger.
type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logger.Err(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
