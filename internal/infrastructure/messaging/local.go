// Package messaging carries domain events from the lifecycle manager to the
// event handlers. Lifecycle operations publish after commit, so handlers only
// see durable changes. A LocalBus dispatches inside one process; a RedisBus
// fans events out to every process through Redis pub/sub.
package messaging

import (
	"errors"
	"sync"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrHandlerPanic   = errors.New("event handler panicked")
	errNilHandler     = errors.New("event handler is nil")
	errNilEvent       = errors.New("event is nil")
)

// anyEvent keys the handlers registered through SubscribeAll.
const anyEvent shared.EventType = ""

// LocalConfig configures a LocalBus.
type LocalConfig struct {
	// Workers is the number of goroutines that run handlers. Zero runs every
	// handler inside Publish, which short-lived commands rely on.
	Workers int
	// QueueSize bounds the deliveries waiting for a worker; Publish blocks
	// while the queue is full.
	QueueSize int
	// Middlewares wrap every handler, outermost first. Panic recovery is
	// always applied outside them.
	Middlewares []Middleware

	Logger *logger.Logger
}

type delivery struct {
	event   shared.Event
	handler shared.EventHandler
}

// LocalBus dispatches events to handlers in the same process.
type LocalBus struct {
	log         *logger.Logger
	middlewares []Middleware

	mu       sync.RWMutex
	handlers map[shared.EventType][]shared.EventHandler
	closed   bool

	queue   chan delivery
	workers sync.WaitGroup
}

// NewLocalBus creates a bus and starts its workers.
func NewLocalBus(cfg LocalConfig) *LocalBus {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("event_bus"))

	b := &LocalBus{
		log:         log,
		middlewares: append([]Middleware{RecoveryMiddleware(log)}, cfg.Middlewares...),
		handlers:    make(map[shared.EventType][]shared.EventHandler),
	}
	if cfg.Workers > 0 {
		if cfg.QueueSize <= 0 {
			cfg.QueueSize = 256
		}
		b.queue = make(chan delivery, cfg.QueueSize)
		for i := 0; i < cfg.Workers; i++ {
			b.workers.Add(1)
			go b.work()
		}
	}
	return b
}

// Subscribe registers handler for one event type.
func (b *LocalBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], Chain(handler, b.middlewares...))
	return nil
}

// SubscribeAll registers handler for every event type.
func (b *LocalBus) SubscribeAll(handler shared.EventHandler) error {
	return b.Subscribe(anyEvent, handler)
}

// Publish hands event to its handlers. Handler failures are logged and never
// reach the publisher.
func (b *LocalBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := append(append([]shared.EventHandler(nil), b.handlers[event.EventType()]...), b.handlers[anyEvent]...)
	if b.queue != nil {
		// Sent under the read lock so Close cannot close the queue midway.
		for _, h := range targets {
			b.queue <- delivery{event: event, handler: h}
		}
		b.mu.RUnlock()
		return nil
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.run(delivery{event: event, handler: h})
	}
	return nil
}

func (b *LocalBus) work() {
	defer b.workers.Done()
	for d := range b.queue {
		b.run(d)
	}
}

func (b *LocalBus) run(d delivery) {
	start := time.Now()
	err := d.handler(d.event)
	metrics.ObserveEventHandler(string(d.event.EventType()), time.Since(start), err == nil)
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(d.event.EventType())),
			logger.String("aggregate_id", d.event.AggregateID()),
			logger.Err(err),
		)
	}
}

// Close rejects new events and waits until queued deliveries are handled.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	return nil
}

var _ shared.EventBus = (*LocalBus)(nil)
