package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// mapStore is an in-process Store that encodes values like Cache does.
type mapStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	sets    int
	deletes int
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (s *mapStore) Get(_ context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return s.getErr
	}
	raw, ok := s.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *mapStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.data[key] = raw
	s.sets++
	return nil
}

func (s *mapStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
		s.deletes++
	}
	return nil
}

func (s *mapStore) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	s.data[key] = raw
	return true, nil
}

type countingSource struct {
	pools map[shared.ProgramID][]int
	calls int
}

func (s *countingSource) LoadReferencePool(_ context.Context, id shared.ProgramID) ([]int, error) {
	s.calls++
	return s.pools[id], nil
}

func TestReferencePoolCache_ReadThrough(t *testing.T) {
	store := newMapStore()
	source := &countingSource{pools: map[shared.ProgramID][]int{"cs": {12, 8, 15}}}
	cache := NewReferencePoolCache(store, source, time.Minute, config.LoadFeatureFlags(), nil)
	ctx := context.Background()

	first, err := cache.LoadReferencePool(ctx, "cs")
	require.NoError(t, err)
	second, err := cache.LoadReferencePool(ctx, "cs")
	require.NoError(t, err)

	assert.Equal(t, []int{12, 8, 15}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls)
}

func TestReferencePoolCache_EmptyPoolIsCached(t *testing.T) {
	store := newMapStore()
	source := &countingSource{pools: map[shared.ProgramID][]int{}}
	cache := NewReferencePoolCache(store, source, time.Minute, config.LoadFeatureFlags(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		pool, err := cache.LoadReferencePool(ctx, "ma")
		require.NoError(t, err)
		assert.Empty(t, pool)
	}
	assert.Equal(t, 1, source.calls)
}

func TestReferencePoolCache_FallsBackOnStoreError(t *testing.T) {
	store := newMapStore()
	store.getErr = errors.New("connection reset")
	source := &countingSource{pools: map[shared.ProgramID][]int{"cs": {10}}}
	cache := NewReferencePoolCache(store, source, time.Minute, config.LoadFeatureFlags(), nil)

	pool, err := cache.LoadReferencePool(context.Background(), "cs")
	require.NoError(t, err)
	assert.Equal(t, []int{10}, pool)
}

func TestReferencePoolCache_Disabled(t *testing.T) {
	store := newMapStore()
	source := &countingSource{pools: map[shared.ProgramID][]int{"cs": {10}}}
	flags := config.LoadFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureScoringPoolCache))
	cache := NewReferencePoolCache(store, source, time.Minute, flags, nil)
	ctx := context.Background()

	_, err := cache.LoadReferencePool(ctx, "cs")
	require.NoError(t, err)
	_, err = cache.LoadReferencePool(ctx, "cs")
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls)
	assert.Zero(t, store.sets)
}

func TestReferencePoolCache_RefreshAndInvalidate(t *testing.T) {
	store := newMapStore()
	source := &countingSource{pools: map[shared.ProgramID][]int{"cs": {9}}}
	cache := NewReferencePoolCache(store, source, time.Minute, config.LoadFeatureFlags(), nil)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx, "cs"))
	source.pools["cs"] = []int{9, 11}

	pool, err := cache.LoadReferencePool(ctx, "cs")
	require.NoError(t, err)
	assert.Equal(t, []int{9}, pool, "served from cache until invalidated")

	require.NoError(t, cache.Invalidate(ctx, "cs"))
	pool, err = cache.LoadReferencePool(ctx, "cs")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 11}, pool)
}

func TestReminderLedger_MarkOnce(t *testing.T) {
	ledger := NewReminderLedger(newMapStore())
	ctx := context.Background()

	first, err := ledger.MarkOnce(ctx, "dl-1", "student-1", time.Hour)
	require.NoError(t, err)
	again, err := ledger.MarkOnce(ctx, "dl-1", "student-1", time.Hour)
	require.NoError(t, err)
	other, err := ledger.MarkOnce(ctx, "dl-1", "student-2", time.Hour)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, again)
	assert.True(t, other)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "pool:cs", PoolKey("cs"))
	assert.Equal(t, "reminder:dl-1:student-1", ReminderKey("dl-1", "student-1"))
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "cache"
	cfg.Port = 6380
	cfg.DB = 2

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 8, opts.PoolSize)

	cfg.URL = "redis://:secret@redis.internal:6379/4"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4, opts.DB)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)

	cfg.URL = "http://not-redis"
	_, err = cfg.Options()
	assert.Error(t, err)
}
