package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	goredis "github.com/redis/go-redis/v9"

	"github.com/omigeot/server/internal/adapter/metrics"
	"github.com/omigeot/server/internal/domain"
)

const (
	configCacheTTL = 1 * time.Hour

	// loadedField marks a hash as a complete copy of the app's config,
	// so an app with no keys is cached too.
	loadedField = "\x00loaded"
)

// AppConfigSource is the authoritative store behind the cache.
type AppConfigSource interface {
	domain.ConfigStore
	GetAppValues(ctx context.Context, app string) (map[string]string, error)
}

// CachedConfigStore is a read-through ConfigStore. Reads go to an in-process
// ttlcache (L1), then a Redis hash per app (L2), then the source (L3).
// Writes go to the source, drop both cache layers for the app and tell
// other instances to drop their L1.
type CachedConfigStore struct {
	rdb     goredis.Cmdable
	source  AppConfigSource
	mem     *ttlcache.Cache[string, map[string]string]
	metrics *metrics.ConfigCacheMetrics

	// gens counts evictions per app. A load only populates the caches if
	// the count did not move while it ran.
	genMu sync.Mutex
	gens  map[string]uint64
}

// NewCachedConfigStore builds the cache. m may be nil.
func NewCachedConfigStore(rdb goredis.Cmdable, source AppConfigSource, memCacheTTL time.Duration, m *metrics.ConfigCacheMetrics) *CachedConfigStore {
	return &CachedConfigStore{
		rdb:    rdb,
		source: source,
		mem: ttlcache.New(
			ttlcache.WithTTL[string, map[string]string](memCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, map[string]string](),
		),
		metrics: m,
		gens:    make(map[string]uint64),
	}
}

// StartEvictionTimer runs ttlcache's expiry loop. Returns a stop function that should be deferred.
func (s *CachedConfigStore) StartEvictionTimer() func() {
	go s.mem.Start()
	return s.mem.Stop
}

func (s *CachedConfigStore) GetAppValue(ctx context.Context, app, key, def string) (string, error) {
	values, err := s.appValues(ctx, app)
	if err != nil {
		return "", err
	}
	if v, ok := values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (s *CachedConfigStore) GetAppKeys(ctx context.Context, app string) ([]string, error) {
	values, err := s.appValues(ctx, app)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(values)), nil
}

func (s *CachedConfigStore) HasKey(ctx context.Context, app, key string) (bool, error) {
	values, err := s.appValues(ctx, app)
	if err != nil {
		return false, err
	}
	_, ok := values[key]
	return ok, nil
}

// GetApps is not cached; it is an admin listing.
func (s *CachedConfigStore) GetApps(ctx context.Context) ([]string, error) {
	return s.source.GetApps(ctx)
}

func (s *CachedConfigStore) SetAppValue(ctx context.Context, app, key, value string) error {
	if err := s.source.SetAppValue(ctx, app, key, value); err != nil {
		return err
	}
	s.invalidate(ctx, app)
	return nil
}

func (s *CachedConfigStore) DeleteAppValue(ctx context.Context, app, key string) error {
	if err := s.source.DeleteAppValue(ctx, app, key); err != nil {
		return err
	}
	s.invalidate(ctx, app)
	return nil
}

func (s *CachedConfigStore) DeleteAppValues(ctx context.Context, app string) error {
	if err := s.source.DeleteAppValues(ctx, app); err != nil {
		return err
	}
	s.invalidate(ctx, app)
	return nil
}

// InvalidateCache evicts the app from both the in-memory cache and Redis.
func (s *CachedConfigStore) InvalidateCache(ctx context.Context, app string) error {
	s.evictLocal(app, metrics.OriginLocal)
	if err := s.rdb.Del(ctx, configCacheKey(app)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate config cache: %w", err)
	}
	return nil
}

func (s *CachedConfigStore) invalidate(ctx context.Context, app string) {
	if err := s.InvalidateCache(ctx, app); err != nil {
		slog.WarnContext(ctx, "Config cache invalidation failed, L2 may serve stale values until TTL", "app", app, "error", err)
	}
	if err := PublishConfigInvalidation(ctx, s.rdb, app); err != nil {
		slog.WarnContext(ctx, "Failed to publish config invalidation", "app", app, "error", err)
	}
}

func (s *CachedConfigStore) evictLocal(app, origin string) {
	s.genMu.Lock()
	s.gens[app]++
	s.mem.Delete(app)
	s.genMu.Unlock()

	if s.metrics != nil {
		s.metrics.Invalidations.WithLabelValues(origin).Inc()
	}
}

func (s *CachedConfigStore) generation(app string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[app]
}

// setLocal stores values in L1 unless app was evicted after gen was read.
func (s *CachedConfigStore) setLocal(app string, values map[string]string, gen uint64) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[app] != gen {
		return false
	}
	s.mem.Set(app, values, ttlcache.DefaultTTL)
	return true
}

func (s *CachedConfigStore) appValues(ctx context.Context, app string) (map[string]string, error) {
	// Layer 1: in-memory cache
	if item := s.mem.Get(app); item != nil {
		s.hit("memory")
		return item.Value(), nil
	}
	s.miss("memory")
	gen := s.generation(app)

	// Layer 2: Redis cache
	if values, ok := s.getCached(ctx, app); ok {
		s.hit("redis")
		s.setLocal(app, values, gen)
		return values, nil
	}
	s.miss("redis")

	// Layer 3: PostgreSQL
	values, err := s.source.GetAppValues(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("config lookup for app %s failed: %w", app, err)
	}

	// A write that landed during the load has already dropped L2, so
	// caching this copy would bring the old values back.
	if !s.setLocal(app, values, gen) {
		if s.metrics != nil {
			s.metrics.DiscardedLoads.Inc()
		}
		return values, nil
	}
	s.writeCache(ctx, app, values)
	return values, nil
}

func (s *CachedConfigStore) getCached(ctx context.Context, app string) (map[string]string, bool) {
	fields, err := s.rdb.HGetAll(ctx, configCacheKey(app)).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Redis config cache HGETALL failed", "app", app, "error", err)
		}
		return nil, false
	}
	if _, ok := fields[loadedField]; !ok {
		return nil, false
	}

	delete(fields, loadedField)
	return fields, true
}

func (s *CachedConfigStore) writeCache(ctx context.Context, app string, values map[string]string) {
	key := configCacheKey(app)

	args := make([]any, 0, 2*len(values)+2)
	args = append(args, loadedField, "1")
	for k, v := range values {
		args = append(args, k, v)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, args...)
		pipe.Expire(ctx, key, configCacheTTL)
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to populate Redis config cache", "app", app, "error", err)
	}
}

func (s *CachedConfigStore) hit(layer string) {
	if s.metrics != nil {
		s.metrics.Hits.WithLabelValues(layer).Inc()
	}
}

func (s *CachedConfigStore) miss(layer string) {
	if s.metrics != nil {
		s.metrics.Misses.WithLabelValues(layer).Inc()
	}
}

func configCacheKey(app string) string {
	return "appconfig:" + app
}
