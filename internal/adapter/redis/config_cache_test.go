package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omigeot/server/internal/adapter/memory"
	"github.com/omigeot/server/internal/adapter/metrics"
)

// countingSource wraps the in-memory store and counts full-app loads.
type countingSource struct {
	*memory.ConfigStore
	loads   atomic.Int32
	loadErr error
	// afterLoad runs once the values are read, before they are returned.
	afterLoad func()
}

func newCountingSource() *countingSource {
	return &countingSource{ConfigStore: memory.NewConfigStore()}
}

func (s *countingSource) GetAppValues(ctx context.Context, app string) (map[string]string, error) {
	s.loads.Add(1)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	values, err := s.ConfigStore.GetAppValues(ctx, app)
	if s.afterLoad != nil {
		hook := s.afterLoad
		s.afterLoad = nil
		hook()
	}
	return values, err
}

// unreachableClient points at a port nothing listens on, so every Redis
// command fails quickly.
func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// --- Unit tests (no Redis needed) ---

func TestCachedConfigStore_MemoryHitSkipsSource(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	require.NoError(t, src.ConfigStore.SetAppValue(ctx, "files", "max", "10"))

	m := metrics.NewConfigCacheMetrics(prometheus.NewRegistry())
	store := NewCachedConfigStore(unreachableClient(t), src, time.Minute, m)

	for range 3 {
		v, err := store.GetAppValue(ctx, "files", "max", "")
		require.NoError(t, err)
		assert.Equal(t, "10", v)
	}

	assert.Equal(t, int32(1), src.loads.Load())
	assert.InDelta(t, 2, testutil.ToFloat64(m.Hits.WithLabelValues("memory")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Misses.WithLabelValues("redis")), 0)
}

func TestCachedConfigStore_DefaultAndKeys(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	require.NoError(t, src.ConfigStore.SetAppValue(ctx, "files", "b", "2"))
	require.NoError(t, src.ConfigStore.SetAppValue(ctx, "files", "a", "1"))
	store := NewCachedConfigStore(unreachableClient(t), src, time.Minute, nil)

	v, err := store.GetAppValue(ctx, "files", "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	keys, err := store.GetAppKeys(ctx, "files")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	has, err := store.HasKey(ctx, "files", "a")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasKey(ctx, "files", "missing")
	require.NoError(t, err)
	assert.False(t, has)

	assert.Equal(t, int32(1), src.loads.Load())
}

func TestCachedConfigStore_WriteInvalidatesEvenWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	store := NewCachedConfigStore(unreachableClient(t), src, time.Minute, nil)

	v, err := store.GetAppValue(ctx, "files", "max", "none")
	require.NoError(t, err)
	assert.Equal(t, "none", v)

	require.NoError(t, store.SetAppValue(ctx, "files", "max", "10"))

	v, err = store.GetAppValue(ctx, "files", "max", "none")
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	require.NoError(t, store.DeleteAppValue(ctx, "files", "max"))
	v, err = store.GetAppValue(ctx, "files", "max", "none")
	require.NoError(t, err)
	assert.Equal(t, "none", v)

	require.NoError(t, store.SetAppValue(ctx, "files", "other", "x"))
	require.NoError(t, store.DeleteAppValues(ctx, "files"))
	keys, err := store.GetAppKeys(ctx, "files")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCachedConfigStore_SourceErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	src.loadErr = errors.New("connection reset")
	store := NewCachedConfigStore(unreachableClient(t), src, time.Minute, nil)

	_, err := store.GetAppValue(ctx, "files", "max", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, src.loadErr)

	src.loadErr = nil
	_, err = store.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestCachedConfigStore_WriteDuringLoadIsNotMasked(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	require.NoError(t, src.ConfigStore.SetAppValue(ctx, "files", "max", "1"))

	m := metrics.NewConfigCacheMetrics(prometheus.NewRegistry())
	store := NewCachedConfigStore(unreachableClient(t), src, time.Minute, m)
	src.afterLoad = func() {
		require.NoError(t, store.SetAppValue(ctx, "files", "max", "2"))
	}

	v, err := store.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Nil(t, store.mem.Get("files"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.DiscardedLoads), 0)

	v, err = store.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestCachedConfigStore_MemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	store := NewCachedConfigStore(unreachableClient(t), src, 50*time.Millisecond, nil)

	_, err := store.GetAppKeys(ctx, "files")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = store.GetAppKeys(ctx, "files")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestCachedConfigStore_EvictionTimerStops(t *testing.T) {
	store := NewCachedConfigStore(unreachableClient(t), newCountingSource(), time.Second, nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stop := store.StartEvictionTimer()
	stop()
}

func TestConfigInvalidationSubscriber_HandleInvalidation(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	m := metrics.NewConfigCacheMetrics(prometheus.NewRegistry())
	store := NewCachedConfigStore(unreachableClient(t), src, time.Minute, m)
	sub := NewConfigInvalidationSubscriber(nil, store)

	_, err := store.GetAppKeys(ctx, "files")
	require.NoError(t, err)

	sub.handleInvalidation(ctx, "")
	assert.NotNil(t, store.mem.Get("files"), "empty payload must be ignored")

	sub.handleInvalidation(ctx, "files")
	assert.Nil(t, store.mem.Get("files"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.Invalidations.WithLabelValues(metrics.OriginRemote)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Invalidations.WithLabelValues(metrics.OriginLocal)), 0)
}

// --- Integration tests (Redis container) ---

func TestCachedConfigStore_RedisLayer(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	src := newCountingSource()
	require.NoError(t, src.ConfigStore.SetAppValue(ctx, "files", "max", "10"))

	m := metrics.NewConfigCacheMetrics(prometheus.NewRegistry())
	first := NewCachedConfigStore(client, src, time.Minute, m)
	second := NewCachedConfigStore(client, src, time.Minute, m)

	v, err := first.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	// second has a cold L1 and must be served by Redis.
	v, err = second.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	assert.Equal(t, int32(1), src.loads.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.Hits.WithLabelValues("redis")), 0)

	ttl, err := client.TTL(ctx, configCacheKey("files")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestCachedConfigStore_CachesEmptyApps(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	src := newCountingSource()

	first := NewCachedConfigStore(client, src, time.Minute, nil)
	second := NewCachedConfigStore(client, src, time.Minute, nil)

	keys, err := first.GetAppKeys(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = second.GetAppKeys(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.Equal(t, int32(1), src.loads.Load())
}

func TestCachedConfigStore_WriteDropsRedisEntry(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	src := newCountingSource()
	store := NewCachedConfigStore(client, src, time.Minute, nil)

	_, err := store.GetAppKeys(ctx, "files")
	require.NoError(t, err)

	exists, err := client.Exists(ctx, configCacheKey("files")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), exists)

	require.NoError(t, store.SetAppValue(ctx, "files", "max", "10"))

	exists, err = client.Exists(ctx, configCacheKey("files")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	v, err := store.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)
	assert.Equal(t, "10", v)
}

func TestCachedConfigStore_WriteDuringLoadLeavesRedisEmpty(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	src := newCountingSource()
	require.NoError(t, src.ConfigStore.SetAppValue(ctx, "files", "max", "1"))

	store := NewCachedConfigStore(client, src, time.Minute, nil)
	src.afterLoad = func() {
		require.NoError(t, store.SetAppValue(ctx, "files", "max", "2"))
	}

	_, err := store.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)

	exists, err := client.Exists(ctx, configCacheKey("files")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	// A cold instance must see the new value, not a stale hash.
	other := NewCachedConfigStore(client, src, time.Minute, nil)
	v, err := other.GetAppValue(ctx, "files", "max", "")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestPublishConfigInvalidation(t *testing.T) {
	client := setupTestClient(t)

	err := PublishConfigInvalidation(context.Background(), client, "files")
	assert.NoError(t, err)
}

func TestConfigInvalidation_MultiInstance(t *testing.T) {
	client := setupTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	src := newCountingSource()
	stores := make([]*CachedConfigStore, 3)
	var wg sync.WaitGroup
	for i := range stores {
		stores[i] = NewCachedConfigStore(client, src, time.Minute, nil)
		_, err := stores[i].GetAppKeys(ctx, "files")
		require.NoError(t, err)

		ready := make(chan struct{})
		sub := NewConfigInvalidationSubscriber(client, stores[i])
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Start(ctx, ready)
		}()
		<-ready
	}

	require.NoError(t, stores[0].SetAppValue(ctx, "files", "max", "10"))

	for i, s := range stores {
		require.Eventually(t, func() bool {
			return s.mem.Get("files") == nil
		}, 2*time.Second, 10*time.Millisecond, "instance %d should drop its in-memory entry", i+1)
	}

	for _, s := range stores {
		v, err := s.GetAppValue(ctx, "files", "max", "")
		require.NoError(t, err)
		assert.Equal(t, "10", v)
	}

	cancel()
	wg.Wait()
}
