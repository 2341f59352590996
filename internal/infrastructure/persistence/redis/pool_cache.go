package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
	"github.com/admissions-hub/admissions-core/pkg/logger"
	"github.com/admissions-hub/admissions-core/pkg/retry"
)

// Store is the subset of Cache used by the typed caches.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

var _ Store = (*Cache)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// REFERENCE POOL CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ReferencePoolCache wraps a ReferencePoolSource with a Redis read-through
// cache. Cache errors fall back to the source; a stale pool only skews
// estimates until the TTL expires.
type ReferencePoolCache struct {
	store    Store
	source   application.ReferencePoolSource
	ttl      time.Duration
	features *config.FeatureFlags
	log      *logger.Logger
}

var _ application.ReferencePoolSource = (*ReferencePoolCache)(nil)

// NewReferencePoolCache creates a new ReferencePoolCache.
func NewReferencePoolCache(
	store Store,
	source application.ReferencePoolSource,
	ttl time.Duration,
	features *config.FeatureFlags,
	log *logger.Logger,
) *ReferencePoolCache {
	if ttl <= 0 {
		ttl = TTLReferencePool
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReferencePoolCache{
		store:    store,
		source:   source,
		ttl:      ttl,
		features: features,
		log:      log.With(logger.Component("pool_cache")),
	}
}

// LoadReferencePool implements application.ReferencePoolSource.
func (c *ReferencePoolCache) LoadReferencePool(ctx context.Context, programID shared.ProgramID) ([]int, error) {
	if !c.features.IsEnabled(config.FeatureScoringPoolCache, nil) {
		return c.source.LoadReferencePool(ctx, programID)
	}

	var pool []int
	err := c.store.Get(ctx, PoolKey(programID.String()), &pool)
	switch {
	case err == nil:
		metrics.RecordPoolCache(true)
		return pool, nil
	case !errors.Is(err, ErrCacheMiss):
		c.log.Warn("pool cache read failed", logger.ProgramID(programID.String()), logger.Err(err))
	}
	metrics.RecordPoolCache(false)

	pool, err = c.source.LoadReferencePool(ctx, programID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, programID, pool)
	return pool, nil
}

// Refresh reloads a program's pool from the source and stores it.
func (c *ReferencePoolCache) Refresh(ctx context.Context, programID shared.ProgramID) error {
	pool, err := c.source.LoadReferencePool(ctx, programID)
	if err != nil {
		return fmt.Errorf("refresh pool %s: %w", programID, err)
	}
	return retry.CacheRetrier().Do(ctx, func(ctx context.Context) error {
		err := c.store.Set(ctx, PoolKey(programID.String()), nonNil(pool), c.ttl)
		if err != nil && !errors.Is(err, ErrCacheSerialization) {
			return retry.Retryable(err)
		}
		return err
	})
}

// Invalidate drops a program's cached pool.
func (c *ReferencePoolCache) Invalidate(ctx context.Context, programID shared.ProgramID) error {
	return c.store.Delete(ctx, PoolKey(programID.String()))
}

func (c *ReferencePoolCache) put(ctx context.Context, programID shared.ProgramID, pool []int) {
	if err := c.store.Set(ctx, PoolKey(programID.String()), nonNil(pool), c.ttl); err != nil {
		c.log.Warn("pool cache write failed", logger.ProgramID(programID.String()), logger.Err(err))
	}
}

// nonNil keeps an empty pool distinguishable from a miss once encoded.
func nonNil(pool []int) []int {
	if pool == nil {
		return []int{}
	}
	return pool
}

// ══════════════════════════════════════════════════════════════════════════════
// REMINDER LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// ReminderLedger remembers which reminders were already sent.
type ReminderLedger struct {
	store Store
}

// NewReminderLedger creates a new ReminderLedger.
func NewReminderLedger(store Store) *ReminderLedger {
	return &ReminderLedger{store: store}
}

// MarkOnce records the (deadline, student) pair and reports whether this is
// the first time it was seen within ttl.
func (l *ReminderLedger) MarkOnce(ctx context.Context, deadlineID, studentID string, ttl time.Duration) (bool, error) {
	return l.store.SetNX(ctx, ReminderKey(deadlineID, studentID), time.Now().UTC(), ttl)
}
