package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
	"github.com/admissions-hub/admissions-core/pkg/retry"
)

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Chain applies middlewares to h; the first middleware is the outermost.
func Chain(h shared.EventHandler, middlewares ...Middleware) shared.EventHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RecoveryMiddleware turns a handler panic into ErrHandlerPanic.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panicked",
						logger.String("event_type", string(event.EventType())),
						logger.Any("panic", r),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(event)
		}
	}
}

// RetryMiddleware re-runs a failing handler up to attempts times with
// exponential backoff.
func RetryMiddleware(attempts int, initialDelay time.Duration) Middleware {
	retrier := retry.New(
		retry.WithMaxAttempts(attempts),
		retry.WithInitialDelay(initialDelay),
		retry.WithMaxDelay(2*time.Second),
		retry.WithRetryIf(func(error) bool { return true }),
	)
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			return retrier.Do(context.Background(), func(context.Context) error {
				return next(event)
			})
		}
	}
}

// LoggingMiddleware logs every handler run at debug level.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			log.Debug("event handled",
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Latency(time.Since(start)),
				logger.Bool("success", err == nil),
			)
			return err
		}
	}
}
