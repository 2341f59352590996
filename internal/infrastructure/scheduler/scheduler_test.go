package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block time.Duration
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block > 0 {
		select {
		case <-time.After(j.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestRegister_Validation(t *testing.T) {
	s := New(DefaultConfig())

	assert.ErrorIs(t, s.Register(nil, "@every 1m"), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, "not a spec"), ErrInvalidSchedule)
	require.NoError(t, s.Register(&countingJob{name: "a"}, "*/5 * * * *"))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, "@hourly"), ErrJobAlreadyExists)
}

func TestRunNow_RecordsResult(t *testing.T) {
	s := New(DefaultConfig())
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("db down")}
	require.NoError(t, s.Register(ok, "@daily"))
	require.NoError(t, s.Register(bad, "@daily"))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.Equal(t, int64(1), jobs[0].FailCount)
	assert.Equal(t, "ok", jobs[1].Name)
	assert.Equal(t, int64(1), jobs[1].RunCount)

	history := s.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "bad", history[0].JobName, "newest first")
}

func TestRunNow_JobTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobTimeout = 10 * time.Millisecond
	s := New(cfg)
	slow := &countingJob{name: "slow", block: time.Second}
	require.NoError(t, s.Register(slow, "@daily"))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	s := New(DefaultConfig())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, "@every 1s"))

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(ctx), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, s.DisableJob("tick"))
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(stopCtx), ErrSchedulerNotRunning)
}

func TestRunNow_RejectsOverlappingRun(t *testing.T) {
	s := New(DefaultConfig())
	slow := &countingJob{name: "remind", block: 200 * time.Millisecond}
	require.NoError(t, s.Register(slow, "@daily"))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "remind")
		done <- err
	}()
	require.Eventually(t, func() bool { return slow.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	res, err := s.RunNow(context.Background(), "remind")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrJobBusy)

	require.NoError(t, <-done)
	assert.Equal(t, int32(1), slow.runs.Load())
}

func TestHistory_KeepsLatest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistorySize = 3
	s := New(cfg)
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Register(&countingJob{name: name}, "@daily"))
		_, err := s.RunNow(context.Background(), name)
		require.NoError(t, err)
	}

	var names []string
	for _, r := range s.History(0) {
		names = append(names, r.JobName)
	}
	assert.Equal(t, []string{"d", "c", "b"}, names)
	require.Len(t, s.History(1), 1)
	assert.Equal(t, "d", s.History(1)[0].JobName)
}
