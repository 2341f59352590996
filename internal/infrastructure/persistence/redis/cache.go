// Package redis holds the Redis-backed caches of the admissions core:
// reference pools for scoring and the deadline reminder ledger. Event
// pub/sub over the same connection lives in the messaging package.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config describes the Redis connection. URL, when set, wins over Host,
// Port, Password and DB.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize, MinIdleConns, MaxRetries     int
	DialTimeout, ReadTimeout, WriteTimeout time.Duration

	// KeyPrefix is prepended to every key.
	KeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     8,
		MinIdleConns: 1,
		MaxRetries:   2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		KeyPrefix:    "admissions:",
	}
}

// Options converts the config into go-redis options.
func (c Config) Options() (*goredis.Options, error) {
	opts := &goredis.Options{
		Addr:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Password: c.Password,
		DB:       c.DB,
	}
	if c.URL != "" {
		parsed, err := goredis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
	}
	opts.PoolSize, opts.MinIdleConns, opts.MaxRetries = c.PoolSize, c.MinIdleConns, c.MaxRetries
	opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout = c.DialTimeout, c.ReadTimeout, c.WriteTimeout
	return opts, nil
}

var (
	ErrCacheMiss       = errors.New("redis: cache miss")
	ErrCacheConnection = errors.New("redis: unreachable")
	// ErrCacheSerialization is not worth retrying.
	ErrCacheSerialization = errors.New("redis: cannot encode value")
	ErrCacheKeyEmpty      = errors.New("redis: empty key")
)

const (
	PrefixPool     = "pool:"
	PrefixReminder = "reminder:"

	TTLReferencePool = 10 * time.Minute
)

func PoolKey(programID string) string { return PrefixPool + programID }

func ReminderKey(deadlineID, studentID string) string {
	return PrefixReminder + deadlineID + ":" + studentID
}

// Cache stores JSON values under prefixed keys.
type Cache struct {
	rdb    *goredis.Client
	prefix string
}

// NewCache connects and waits for the first PING within DialTimeout.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, max(cfg.DialTimeout, time.Second))
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// Client is shared with the event bus transport.
func (c *Cache) Client() *goredis.Client { return c.rdb }

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Cache) keys(in ...string) ([]string, error) {
	out := make([]string, len(in))
	for i, k := range in {
		if k == "" {
			return nil, ErrCacheKeyEmpty
		}
		out[i] = c.prefix + k
	}
	return out, nil
}

// prepare validates key and encodes value for a write.
func (c *Cache) prepare(key string, value interface{}) (string, []byte, error) {
	k, err := c.keys(key)
	if err != nil {
		return "", nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return k[0], raw, nil
}

// Set writes value as JSON. ttl 0 means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	k, raw, err := c.prepare(key, value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, k, raw, ttl).Err()
}

// SetNX writes value only if key is free and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	k, raw, err := c.prepare(key, value)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, k, raw, ttl).Result()
}

// Get decodes the value at key into dest. Absent keys give ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	k, err := c.keys(key)
	if err != nil {
		return err
	}
	raw, err := c.rdb.Get(ctx, k[0]).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// Delete removes keys; missing ones are ignored.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full, err := c.keys(keys...)
	if err != nil {
		return err
	}
	return c.rdb.Del(ctx, full...).Err()
}
