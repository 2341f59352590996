package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/scheduler"
	"github.com/admissions-hub/admissions-core/internal/interface/http/handlers"
)

type stubJob struct{ err error }

func (j stubJob) Name() string                  { return "warm_reference_pools" }
func (j stubJob) Description() string           { return "warm" }
func (j stubJob) Run(ctx context.Context) error { return j.err }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth_CriticalAndOptionalChecks(t *testing.T) {
	checker := handlers.NewChecker("1.0.0")
	checker.AddCheck("database", func(context.Context) error { return nil })
	checker.AddOptionalCheck("mail_relay", handlers.NewBreakerCheck(func() bool { return true }))

	s := NewServer(DefaultConfig(), Dependencies{Health: checker})

	rec := serve(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code, "optional failure keeps the worker healthy")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status handlers.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Equal(t, handlers.ErrBreakerOpen.Error(), status.Checks["mail_relay"].Message)

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/readyz").Code)

	checker.AddCheck("database", func(context.Context) error { return errors.New("connection refused") })
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/healthz").Code)
}

func TestLiveAndMetrics(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})

	assert.Equal(t, http.StatusOK, serve(t, s, "/livez").Code)
	assert.Equal(t, http.StatusOK, serve(t, s, "/readyz").Code)

	rec := serve(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableMetrics = false
	s := NewServer(cfg, Dependencies{})

	assert.Equal(t, http.StatusNotFound, serve(t, s, "/metrics").Code)
}

func TestJobs(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	assert.Equal(t, http.StatusNotFound, serve(t, s, "/jobs").Code)

	sched := scheduler.New(scheduler.DefaultConfig())
	require.NoError(t, sched.Register(stubJob{err: errors.New("redis down")}, "*/10 * * * *"))
	_, _ = sched.RunNow(context.Background(), "warm_reference_pools")

	s = NewServer(DefaultConfig(), Dependencies{Jobs: sched})
	rec := serve(t, s, "/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []handlers.JobView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "warm_reference_pools", jobs[0].Name)
	assert.Equal(t, "*/10 * * * *", jobs[0].Schedule)
	assert.Equal(t, "redis down", jobs[0].LastError)
	assert.NotNil(t, jobs[0].LastRunAt)
}

func TestFlags(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, serve(t, NewServer(DefaultConfig(), Dependencies{}), "/flags").Code)

	s := NewServer(DefaultConfig(), Dependencies{Flags: config.LoadFeatureFlags()})
	rec := serve(t, s, "/flags")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"notify.email","description"`)
	assert.Contains(t, rec.Body.String(), `"rollout_percent":0`)
}

func TestPanicRecovered(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	h := s.withRequestID(s.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(DefaultConfig(), Dependencies{})
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
