package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/omigeot/server/internal/adapter/redis"
)

const envRedisURL = "REDIS_URL"

func newCacheCmd(o *options) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the shared config cache",
	}

	var (
		redisURL string
		dryRun   bool
	)
	flush := &cobra.Command{
		Use:   "flush",
		Short: "Drop cached app config from Redis and evict it on every instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if redisURL == "" {
				return fmt.Errorf("redis URL required (--redis or %s)", envRedisURL)
			}

			ctx := cmd.Context()
			rdb, err := redis.NewClient(ctx, redisURL)
			if err != nil {
				return err
			}
			defer func() { _ = rdb.Close() }()
			slog.Info("Connected to Redis", "url", redis.SanitizeURL(redisURL))

			stats, err := redis.FlushConfigCache(ctx, rdb, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(o.stdout, "scanned %d, deleted %d\n", stats.Scanned, stats.Deleted)
			return nil
		},
	}
	flush.Flags().StringVar(&redisURL, "redis", envOr(envRedisURL, ""), "Redis URL (or set "+envRedisURL+")")
	flush.Flags().BoolVar(&dryRun, "dry-run", false, "list cached apps without deleting them")

	cache.AddCommand(flush)
	return cache
}
