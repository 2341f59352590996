// Package retry re-runs operations that fail transiently: optimistic
// concurrency conflicts, cache writes and mail relay calls.
//
// By default only errors marked with Retryable are retried. An error that
// carries a retry hint (see Hinter) waits for the hinted delay instead of the
// backoff, and ends the retries when the hint is longer than the maximum
// delay.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type retryableError struct {
	err   error
	after time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// RetryDelay implements Hinter.
func (e *retryableError) RetryDelay() time.Duration { return e.after }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// RetryAfter marks err as retryable no sooner than d.
func RetryAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err, after: d}
}

// Permanent marks err as final even when RetryIf would accept it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether err was marked with Retryable or RetryAfter.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Hinter is implemented by errors that know when the next attempt may run,
// such as a rate-limited HTTP response. Zero means no hint.
type Hinter interface {
	RetryDelay() time.Duration
}

func hint(err error) time.Duration {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if h, ok := e.(Hinter); ok {
			if d := h.RetryDelay(); d > 0 {
				return d
			}
		}
	}
	return 0
}

// strip removes this package's markers from the outside of err.
func strip(err error) error {
	for {
		switch e := err.(type) {
		case *retryableError:
			err = e.err
		case *permanentError:
			err = e.err
		default:
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKOFF
// ══════════════════════════════════════════════════════════════════════════════

// Backoff computes capped exponential delays.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter spreads each delay by up to ±Jitter of its value.
	Jitter float64
}

// Delay returns the wait after the given failed attempt (1-based). rnd
// returns values in [0, 1).
func (b Backoff) Delay(attempt int, rnd func() float64) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 && rnd != nil {
		d += d * b.Jitter * (2*rnd() - 1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy configures a Retrier.
type Policy struct {
	// MaxAttempts counts the first call (default 3).
	MaxAttempts int
	Backoff     Backoff

	// RetryIf overrides which errors are retried. Nil retries only errors
	// marked Retryable.
	RetryIf func(error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy is three attempts starting at 100ms, doubling up to 30s,
// with 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff: Backoff{
			Initial:    100 * time.Millisecond,
			Max:        30 * time.Second,
			Multiplier: 2,
			Jitter:     0.1,
		},
	}
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of attempts.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the first backoff delay.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.Backoff.Initial = d
		}
	}
}

// WithMaxDelay caps backoff delays and retry hints.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.Backoff.Max = d
		}
	}
}

// WithMultiplier sets the backoff growth factor (at least 1).
func WithMultiplier(m float64) Option {
	return func(p *Policy) {
		if m >= 1 {
			p.Backoff.Multiplier = m
		}
	}
}

// WithJitter sets the jitter fraction, between 0 and 1.
func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Backoff.Jitter = j
		}
	}
}

// WithRetryIf sets the retry classifier.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) { p.RetryIf = fn }
}

// WithOnRetry sets a callback that runs before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs operations under a Policy. Safe for concurrent use.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	rnd    func() float64
}

// New creates a Retrier from DefaultPolicy and opts.
func New(opts ...Option) *Retrier {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p, sleep: sleepCtx, rnd: rand.Float64}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if r.policy.RetryIf != nil {
		return r.policy.RetryIf(err)
	}
	return IsRetryable(err)
}

// Do calls operation until it succeeds, returns an error that should not be
// retried, or runs out of attempts. The returned error has the package's
// markers removed. A canceled context stops the loop with the last error
// seen, or the context error when nothing ran.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return strip(last)
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		last = err

		if attempt >= r.policy.MaxAttempts || !r.shouldRetry(err) {
			return strip(err)
		}

		delay := r.policy.Backoff.Delay(attempt, r.rnd)
		if h := hint(err); h > 0 {
			if h > r.policy.Backoff.Max {
				return strip(err)
			}
			delay = h
		}

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		if r.sleep(ctx, delay) != nil {
			return strip(last)
		}
	}
}

// Do runs operation with a Retrier built from opts.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var result T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}

// ConflictRetrier re-runs an operation when retryIf reports an optimistic
// concurrency conflict. The competing writer has usually committed by the
// next attempt, so delays stay short.
func ConflictRetrier(maxAttempts int, retryIf func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(5*time.Millisecond),
		WithMaxDelay(100*time.Millisecond),
		WithJitter(0.3),
		WithRetryIf(retryIf),
	)
}

// CacheRetrier gives a best-effort cache write one more try.
func CacheRetrier() *Retrier {
	return New(
		WithMaxAttempts(2),
		WithInitialDelay(20*time.Millisecond),
		WithMaxDelay(200*time.Millisecond),
	)
}
