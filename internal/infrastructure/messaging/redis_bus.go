package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// Transport is the pub/sub channel between processes.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers payloads until ctx ends or Close is called.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// DefaultChannel is the pub/sub channel events travel on.
const DefaultChannel = "admissions:events"

// RedisConfig configures a RedisBus.
type RedisConfig struct {
	Transport Transport
	Channel   string
	// Origin tags events published here so the subscriber can skip them;
	// they were already handled locally.
	Origin string
	Local  LocalConfig
	Logger *logger.Logger
}

// RedisBus publishes to Redis and to its own LocalBus, and feeds events from
// other processes into the LocalBus.
type RedisBus struct {
	transport Transport
	channel   string
	origin    string
	local     *LocalBus
	log       *logger.Logger

	stop     context.CancelFunc
	done     chan struct{}
	closeOne sync.Once
}

// NewRedisBus subscribes to the channel and starts relaying.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	if cfg.Transport == nil {
		return nil, errors.New("messaging: redis transport is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Origin == "" {
		cfg.Origin = uuid.NewString()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Local.Logger == nil {
		cfg.Local.Logger = log
	}

	ctx, stop := context.WithCancel(context.Background())
	in, err := cfg.Transport.Subscribe(ctx, cfg.Channel)
	if err != nil {
		stop()
		return nil, fmt.Errorf("messaging: subscribe %s: %w", cfg.Channel, err)
	}

	b := &RedisBus{
		transport: cfg.Transport,
		channel:   cfg.Channel,
		origin:    cfg.Origin,
		local:     NewLocalBus(cfg.Local),
		log:       log.With(logger.Component("redis_event_bus")),
		stop:      stop,
		done:      make(chan struct{}),
	}
	go b.relay(ctx, in)
	return b, nil
}

func (b *RedisBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

func (b *RedisBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish runs local handlers even when Redis is unreachable; the failure is
// only logged.
func (b *RedisBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}
	payload, err := json.Marshal(encodeEvent(b.origin, event))
	if err != nil {
		return fmt.Errorf("messaging: encode %s: %w", event.EventType(), err)
	}
	if err := b.local.Publish(event); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.transport.Publish(ctx, b.channel, payload); err != nil {
		b.log.Error("redis publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
	return nil
}

func (b *RedisBus) relay(ctx context.Context, in <-chan []byte) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-in:
			if !ok {
				return
			}
			b.receive(payload)
		}
	}
}

// receive hands a remote event to the local handlers.
func (b *RedisBus) receive(payload []byte) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		b.log.Warn("dropping malformed event", logger.Err(err))
		return
	}
	if w.Origin == b.origin {
		return
	}
	if err := b.local.Publish(w); err != nil {
		b.log.Error("remote event not handled",
			logger.String("event_type", string(w.Type)),
			logger.Err(err),
		)
	}
}

// Close stops relaying, drains the local bus and ends the subscription.
func (b *RedisBus) Close() error {
	var err error
	b.closeOne.Do(func() {
		b.stop()
		<-b.done
		err = errors.Join(b.local.Close(), b.transport.Close())
	})
	return err
}

var _ shared.EventBus = (*RedisBus)(nil)

// wireEvent is an event as it travels over Redis. It implements shared.Event
// so remote events reach handlers unchanged.
type wireEvent struct {
	ID        string                 `json:"id"`
	Origin    string                 `json:"origin"`
	Type      shared.EventType       `json:"type"`
	Aggregate string                 `json:"aggregate_id"`
	At        time.Time              `json:"occurred_at"`
	Data      map[string]interface{} `json:"payload"`
}

func encodeEvent(origin string, e shared.Event) wireEvent {
	return wireEvent{
		ID:        uuid.NewString(),
		Origin:    origin,
		Type:      e.EventType(),
		Aggregate: e.AggregateID(),
		At:        e.OccurredAt(),
		Data:      e.Payload(),
	}
}

func (w wireEvent) EventType() shared.EventType     { return w.Type }
func (w wireEvent) AggregateID() string             { return w.Aggregate }
func (w wireEvent) OccurredAt() time.Time           { return w.At }
func (w wireEvent) Payload() map[string]interface{} { return w.Data }

// GoRedisTransport is a Transport on a go-redis client. The client belongs
// to the caller; Close only ends the subscription.
type GoRedisTransport struct {
	client *goredis.Client

	mu     sync.Mutex
	pubsub *goredis.PubSub
}

func NewGoRedisTransport(client *goredis.Client) *GoRedisTransport {
	return &GoRedisTransport{client: client}
}

func (t *GoRedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

// Subscribe waits for Redis to confirm the subscription before returning.
func (t *GoRedisTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	t.mu.Lock()
	t.pubsub = ps
	t.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (t *GoRedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pubsub == nil {
		return nil
	}
	err := t.pubsub.Close()
	t.pubsub = nil
	return err
}
