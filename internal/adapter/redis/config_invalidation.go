package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/omigeot/server/internal/adapter/metrics"
)

const configInvalidationChannel = "appconfig:invalidate"

// ConfigInvalidationSubscriber evicts this instance's L1 entries when any
// instance writes an app's config.
type ConfigInvalidationSubscriber struct {
	rdb   *goredis.Client
	cache *CachedConfigStore
}

func NewConfigInvalidationSubscriber(rdb *goredis.Client, cache *CachedConfigStore) *ConfigInvalidationSubscriber {
	return &ConfigInvalidationSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is cancelled or the subscription closes.
// ready, if non-nil, is closed once the subscription is confirmed.
func (s *ConfigInvalidationSubscriber) Start(ctx context.Context, ready chan<- struct{}) {
	pubsub := s.rdb.Subscribe(ctx, configInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		slog.Error("Config invalidation subscription failed", "error", err)
		return
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}
			s.handleInvalidation(ctx, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *ConfigInvalidationSubscriber) handleInvalidation(ctx context.Context, app string) {
	if app == "" {
		slog.WarnContext(ctx, "Empty config invalidation message")
		return
	}

	s.cache.evictLocal(app, metrics.OriginRemote)
	slog.DebugContext(ctx, "Config cache invalidated via pub/sub", "app", app)
}

func PublishConfigInvalidation(ctx context.Context, rdb goredis.Cmdable, app string) error {
	if err := rdb.Publish(ctx, configInvalidationChannel, app).Err(); err != nil {
		return fmt.Errorf("failed to publish config invalidation: %w", err)
	}
	return nil
}
