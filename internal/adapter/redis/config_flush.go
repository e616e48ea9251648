package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const scanCount = 100

// FlushStats summarises a FlushConfigCache run.
type FlushStats struct {
	Scanned  int
	Deleted  int
	Duration time.Duration
}

// FlushConfigCache drops every cached app hash and tells running instances
// to evict their in-memory copies. With dryRun set nothing is written.
func FlushConfigCache(ctx context.Context, rdb goredis.Cmdable, dryRun bool) (FlushStats, error) {
	start := time.Now()
	var stats FlushStats
	var cursor uint64

	slog.InfoContext(ctx, "Starting config cache flush", "dry_run", dryRun)

	for {
		keys, next, err := rdb.Scan(ctx, cursor, configCacheKey("*"), scanCount).Result()
		if err != nil {
			return stats, fmt.Errorf("scan failed: %w", err)
		}

		for _, key := range keys {
			stats.Scanned++
			app := strings.TrimPrefix(key, configCacheKey(""))

			if dryRun {
				slog.InfoContext(ctx, "Would flush cached app config", "app", app)
				continue
			}

			if err := rdb.Del(ctx, key).Err(); err != nil {
				return stats, fmt.Errorf("delete %s: %w", key, err)
			}
			if err := PublishConfigInvalidation(ctx, rdb, app); err != nil {
				slog.WarnContext(ctx, "Failed to publish invalidation", "app", app, "error", err)
			}
			slog.DebugContext(ctx, "Flushed cached app config", "app", app)
			stats.Deleted++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	stats.Duration = time.Since(start)
	slog.InfoContext(ctx, "Config cache flush summary",
		"scanned", stats.Scanned,
		"deleted", stats.Deleted,
		"duration_ms", stats.Duration.Milliseconds())
	return stats, nil
}

// SanitizeURL hides the password of a redis URL for logging.
func SanitizeURL(url string) string {
	before, after, ok := strings.Cut(url, "@")
	if !ok {
		return url
	}
	scheme, creds, ok := strings.Cut(before, "://")
	if !ok {
		return url
	}
	user, _, ok := strings.Cut(creds, ":")
	if !ok {
		return url
	}
	return scheme + "://" + user + ":***@" + after
}
