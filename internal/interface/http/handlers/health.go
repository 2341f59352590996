// Package handlers holds the endpoints of the worker's operations server.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckFunc probes one dependency and returns nil when it is usable.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Report is the body of /healthz. Healthy drops when a critical check fails,
// Ready drops when any check fails.
type Report struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Checker runs the registered probes concurrently, each under its own
// timeout.
type Checker struct {
	version string
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks []check
}

// NewChecker creates a checker that reports version.
func NewChecker(version string) *Checker {
	return &Checker{version: version, started: time.Now(), timeout: 5 * time.Second}
}

// SetTimeout bounds each probe.
func (c *Checker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// AddCheck registers a probe the worker cannot run without. Registering a
// name twice replaces the earlier probe.
func (c *Checker) AddCheck(name string, fn CheckFunc) { c.register(name, true, fn) }

// AddOptionalCheck registers a probe whose failure only affects readiness.
func (c *Checker) AddOptionalCheck(name string, fn CheckFunc) { c.register(name, false, fn) }

func (c *Checker) register(name string, critical bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = slices.DeleteFunc(c.checks, func(ch check) bool { return ch.name == name })
	c.checks = append(c.checks, check{name: name, critical: critical, fn: fn})
}

// Check runs every probe and aggregates the results.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := slices.Clone(c.checks)
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, ch := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			start := time.Now()
			err := ch.fn(cctx)
			results[i] = CheckResult{
				Healthy:  err == nil,
				Critical: ch.critical,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				results[i].Message = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	var failed []string
	for i, ch := range checks {
		r := results[i]
		report.Checks[ch.name] = r
		if r.Healthy {
			continue
		}
		failed = append(failed, ch.name)
		report.Ready = false
		if r.Critical {
			report.Healthy = false
		}
	}
	switch {
	case len(checks) == 0:
		report.Message = "no checks registered"
	case len(failed) == 0:
		report.Message = "all checks passed"
	default:
		slices.Sort(failed)
		report.Message = "failing: " + strings.Join(failed, ", ")
	}
	return report
}

// Pinger is the PostgreSQL connection or the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck probes a Pinger.
func NewPingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// ErrBreakerOpen is reported while an outbound circuit breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker open")

// NewBreakerCheck fails while isOpen reports true.
func NewBreakerCheck(isOpen func() bool) CheckFunc {
	return func(context.Context) error {
		if isOpen() {
			return ErrBreakerOpen
		}
		return nil
	}
}

// Health serves the full report, with 503 when a critical check fails. A nil
// checker always reports healthy.
func Health(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}
		report := c.Check(r.Context())
		code := http.StatusOK
		if !report.Healthy {
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, report)
	}
}

// Ready answers 503 while any check fails.
func Ready(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c != nil {
			if report := c.Check(r.Context()); !report.Ready {
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not_ready",
					"reason": report.Message,
				})
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// Live answers as long as the process serves HTTP.
func Live(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
