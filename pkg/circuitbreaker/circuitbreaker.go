// Package circuitbreaker stops callers from hammering an outbound service
// (the mail relay) that keeps failing.
//
// A breaker starts closed. After FailureThreshold consecutive failures it
// opens and rejects calls for OpenTimeout; the next call then becomes a probe
// in the half-open state. SuccessThreshold successful probes close it again,
// a failed probe reopens it.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned without calling the operation while the
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Settings configures a breaker. Zero values fall back to the defaults.
type Settings struct {
	Name string

	// FailureThreshold - consecutive failures that open a closed breaker (5).
	FailureThreshold int
	// SuccessThreshold - successful probes that close a half-open breaker (2).
	SuccessThreshold int
	// OpenTimeout - how long an open breaker rejects calls (30s).
	OpenTimeout time.Duration
	// MaxProbes - concurrent calls let through while half-open (1).
	MaxProbes int

	// OnStateChange is called under the breaker's lock; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count against the service. Nil counts
	// every non-nil error.
	IsFailure func(error) bool

	now func() time.Time
}

func (s *Settings) applyDefaults() {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.MaxProbes <= 0 {
		s.MaxProbes = 1
	}
	if s.now == nil {
		s.now = time.Now
	}
}

// Option adjusts Settings.
type Option func(*Settings)

// WithFailureThreshold sets the consecutive failures that open the breaker.
func WithFailureThreshold(n int) Option {
	return func(s *Settings) { s.FailureThreshold = n }
}

// WithSuccessThreshold sets the successful probes that close the breaker.
func WithSuccessThreshold(n int) Option {
	return func(s *Settings) { s.SuccessThreshold = n }
}

// WithTimeout sets how long the breaker stays open.
func WithTimeout(d time.Duration) Option {
	return func(s *Settings) { s.OpenTimeout = d }
}

// WithMaxHalfOpenRequests sets the number of concurrent probes.
func WithMaxHalfOpenRequests(n int) Option {
	return func(s *Settings) { s.MaxProbes = n }
}

// WithOnStateChange registers a state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *Settings) { s.OnStateChange = fn }
}

// WithIsFailure sets the failure classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *Settings) { s.IsFailure = fn }
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) Option {
	return func(s *Settings) { s.now = now }
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Counts is a snapshot of the breaker's bookkeeping.
type Counts struct {
	Requests             int
	Rejected             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker guards calls to one dependency. Safe for concurrent use.
type CircuitBreaker struct {
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
	// generation changes with every state change; results that arrive for an
	// older generation are dropped.
	generation uint64
	openedAt   time.Time
	probes     int
}

// New creates a closed breaker.
func New(name string, opts ...Option) *CircuitBreaker {
	s := Settings{Name: name}
	for _, opt := range opts {
		opt(&s)
	}
	s.applyDefaults()
	return &CircuitBreaker{settings: s}
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.settings.Name }

// Execute runs fn when the breaker admits it and records the outcome. A panic
// in fn counts as a failure and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) (err error) {
	gen, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			cb.record(gen, true)
			panic(p)
		}
	}()

	err = fn(ctx)
	cb.record(gen, cb.isFailure(err))
	return err
}

func (cb *CircuitBreaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if cb.settings.IsFailure != nil {
		return cb.settings.IsFailure(err)
	}
	return true
}

// admit decides whether a call may go through and returns the generation it
// belongs to.
func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refresh()

	switch cb.state {
	case StateOpen:
		cb.counts.Rejected++
		return cb.generation, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.settings.MaxProbes {
			cb.counts.Rejected++
			return cb.generation, ErrTooManyRequests
		}
		cb.probes++
	}
	cb.counts.Requests++
	return cb.generation, nil
}

// refresh moves an expired open breaker to half-open. Caller holds mu.
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && !cb.settings.now().Before(cb.openedAt.Add(cb.settings.OpenTimeout)) {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) record(gen uint64, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}

	if failed {
		cb.counts.TotalFailures++
		cb.counts.ConsecutiveFailures++
		cb.counts.ConsecutiveSuccesses = 0
		if cb.state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.settings.FailureThreshold {
			cb.transition(StateOpen)
		}
		return
	}

	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0
	if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.settings.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

// transition switches state and starts a new generation. Caller holds mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.probes = 0
	cb.counts.ConsecutiveFailures = 0
	cb.counts.ConsecutiveSuccesses = 0
	if to == StateOpen {
		cb.openedAt = cb.settings.now()
	}
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// State returns the current state. An open breaker whose timeout has passed
// reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

// Counts returns a snapshot of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.counts = Counts{}
}

// MailRelayBreaker returns the breaker for the outbound mail relay. Email is
// best effort, so it opens early and probes once a minute.
func MailRelayBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("mail-relay",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithOnStateChange(onStateChange),
	)
}
