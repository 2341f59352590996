package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

func statusChanged() shared.Event {
	return shared.NewApplicationStatusChangedEvent("app-1", "student-1", "CS at UZ", "Pending", "Approved", "enroller-1")
}

func TestLocalBus_RoutesByType(t *testing.T) {
	bus := NewLocalBus(LocalConfig{})
	var typed, all []shared.EventType

	require.NoError(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(statusChanged()))
	require.NoError(t, bus.Publish(shared.NewApplicationSubmittedEvent("app-2", "student-1", "cs")))

	assert.Equal(t, []shared.EventType{shared.EventApplicationStatusChanged}, typed)
	assert.Equal(t, []shared.EventType{shared.EventApplicationStatusChanged, shared.EventApplicationSubmitted}, all)
}

func TestLocalBus_HandlerFailuresStayInside(t *testing.T) {
	bus := NewLocalBus(LocalConfig{})
	calls := 0
	require.NoError(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(shared.Event) error {
		panic("handler bug")
	}))
	require.NoError(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(shared.Event) error {
		calls++
		return nil
	}))

	assert.NotPanics(t, func() {
		assert.NoError(t, bus.Publish(statusChanged()))
	})
	assert.Equal(t, 1, calls, "later handlers still run")
}

func TestLocalBus_WorkersDrainOnClose(t *testing.T) {
	bus := NewLocalBus(LocalConfig{Workers: 2, QueueSize: 8})
	var handled atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(shared.Event) error {
		time.Sleep(2 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(statusChanged()))
	}
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(5), handled.Load())
	assert.ErrorIs(t, bus.Publish(statusChanged()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestLocalBus_RejectsNil(t *testing.T) {
	bus := NewLocalBus(LocalConfig{})
	assert.Error(t, bus.Subscribe(shared.EventApplicationStatusChanged, nil))
	assert.Error(t, bus.Publish(nil))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next shared.EventHandler) shared.EventHandler {
			return func(e shared.Event) error {
				order = append(order, name)
				return next(e)
			}
		}
	}
	h := Chain(func(shared.Event) error {
		order = append(order, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	require.NoError(t, h(statusChanged()))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRetryMiddleware(t *testing.T) {
	attempts := 0
	h := RetryMiddleware(3, time.Millisecond)(func(shared.Event) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, h(statusChanged()))
	assert.Equal(t, 3, attempts)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(nil)(func(shared.Event) error { panic("nil map") })
	assert.ErrorIs(t, h(statusChanged()), ErrHandlerPanic)
}

// memTransport connects buses in one test like a Redis channel would.
type memTransport struct {
	hub        *memHub
	publishErr error
}

type memHub struct {
	mu   sync.Mutex
	subs []chan []byte
}

func (t *memTransport) Publish(_ context.Context, _ string, payload []byte) error {
	if t.publishErr != nil {
		return t.publishErr
	}
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	for _, ch := range t.hub.subs {
		ch <- payload
	}
	return nil
}

func (t *memTransport) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	t.hub.mu.Lock()
	t.hub.subs = append(t.hub.subs, ch)
	t.hub.mu.Unlock()
	return ch, nil
}

func (t *memTransport) Close() error { return nil }

func newRedisBus(t *testing.T, hub *memHub, origin string) *RedisBus {
	t.Helper()
	bus, err := NewRedisBus(RedisConfig{Transport: &memTransport{hub: hub}, Origin: origin})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisBus_DeliversAcrossProcesses(t *testing.T) {
	hub := &memHub{}
	api := newRedisBus(t, hub, "cli")
	worker := newRedisBus(t, hub, "worker")

	received := make(chan shared.Event, 1)
	require.NoError(t, worker.Subscribe(shared.EventApplicationStatusChanged, func(e shared.Event) error {
		received <- e
		return nil
	}))

	require.NoError(t, api.Publish(statusChanged()))

	select {
	case e := <-received:
		assert.Equal(t, "app-1", e.AggregateID())
		assert.Equal(t, "student-1", e.Payload()["student_id"])
		assert.Equal(t, "Approved", e.Payload()["new_status"])
	case <-time.After(time.Second):
		t.Fatal("event did not reach the worker")
	}
}

func TestRedisBus_SkipsItsOwnEvents(t *testing.T) {
	bus := newRedisBus(t, &memHub{}, "worker")
	calls := 0
	require.NoError(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(shared.Event) error {
		calls++
		return nil
	}))

	own, err := json.Marshal(encodeEvent("worker", statusChanged()))
	require.NoError(t, err)
	bus.receive(own)
	assert.Zero(t, calls)

	remote, err := json.Marshal(encodeEvent("cli", statusChanged()))
	require.NoError(t, err)
	bus.receive(remote)
	assert.Equal(t, 1, calls)

	bus.receive([]byte("{not json"))
	assert.Equal(t, 1, calls)
}

func TestRedisBus_PublishFailureStillRunsLocalHandlers(t *testing.T) {
	bus, err := NewRedisBus(RedisConfig{
		Transport: &memTransport{hub: &memHub{}, publishErr: errors.New("redis down")},
	})
	require.NoError(t, err)
	defer bus.Close()

	calls := 0
	require.NoError(t, bus.Subscribe(shared.EventApplicationStatusChanged, func(shared.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, bus.Publish(statusChanged()))
	assert.Equal(t, 1, calls)
}

func TestNewRedisBus_RequiresTransport(t *testing.T) {
	_, err := NewRedisBus(RedisConfig{})
	assert.Error(t, err)
}
