package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/omigeot/server/internal/adapter/appdata"
	"github.com/omigeot/server/internal/adapter/httpserver"
	"github.com/omigeot/server/internal/adapter/memory"
	"github.com/omigeot/server/internal/adapter/metrics"
	"github.com/omigeot/server/internal/adapter/postgres"
	"github.com/omigeot/server/internal/adapter/redis"
	"github.com/omigeot/server/internal/app"
	"github.com/omigeot/server/internal/domain"
	"github.com/omigeot/server/internal/platform/config"
	"github.com/omigeot/server/internal/platform/logging"
	"github.com/omigeot/server/internal/theming"
)

const (
	themingApp    = "theming"
	instanceIDKey = "instanceid"
)

// configBackend is the selected config store plus whatever must be
// released on shutdown.
type configBackend struct {
	store        domain.ConfigStore
	healthChecks []httpserver.HealthCheck
	closers      []func()
}

func (b *configBackend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runGracefulShutdown(srv *httpserver.Server, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancel()
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracer := postgres.NewMetricsTracer(metrics.NewDBMetrics(reg))
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, tracer)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	m := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewCircuitBreakerHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupConfigBackend(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *configBackend {
	if cfg.ConfigBackend == config.BackendMemory {
		slog.Warn("Using in-memory config store, values are lost on restart")
		return &configBackend{store: memory.NewConfigStore()}
	}

	pool := setupDB(cfg, reg)
	redisClient := setupRedis(ctx, cfg, reg)

	cached := redis.NewCachedConfigStore(redisClient, postgres.NewAppConfigRepo(pool), cfg.ConfigCacheTTL, metrics.NewConfigCacheMetrics(reg))
	stopEviction := cached.StartEvictionTimer()

	ready := make(chan struct{})
	go redis.NewConfigInvalidationSubscriber(redisClient, cached).Start(ctx, ready)
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		slog.Warn("Config invalidation subscriber not ready, continuing")
	}

	return &configBackend{
		store: cached,
		healthChecks: []httpserver.HealthCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		closers: []func(){
			pool.Close,
			func() { _ = redisClient.Close() },
			stopEviction,
		},
	}
}

// instanceID returns the configured id, or the one persisted in the config
// store, generating and persisting a new one on first start.
func instanceID(ctx context.Context, cfg *config.Config, store domain.ConfigStore) (string, error) {
	if cfg.InstanceID != "" {
		return cfg.InstanceID, nil
	}

	id, err := store.GetAppValue(ctx, domain.CoreApp, instanceIDKey, "")
	if err != nil {
		return "", fmt.Errorf("read instance id: %w", err)
	}
	if id != "" {
		return id, nil
	}

	id = "oc" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	if err := store.SetAppValue(ctx, domain.CoreApp, instanceIDKey, id); err != nil {
		return "", fmt.Errorf("persist instance id: %w", err)
	}
	slog.Info("Generated instance id", "instance_id", id)
	return id, nil
}

func setupAppData(ctx context.Context, cfg *config.Config, instance string) domain.AppData {
	switch cfg.AppDataBackend {
	case config.BackendMemory:
		slog.Warn("Using in-memory app data, icon cache is lost on restart")
		return appdata.NewMemory()
	case config.BackendS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			slog.Error("Failed to load AWS config", "error", err)
			os.Exit(1)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		store, err := appdata.NewS3(client, cfg.S3Bucket, instance, themingApp)
		if err != nil {
			slog.Error("Failed to create S3 app data store", "error", err)
			os.Exit(1)
		}
		slog.Info("App data on S3", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
		return store
	default:
		store, err := appdata.NewLocal(cfg.DataDir, instance, themingApp)
		if err != nil {
			slog.Error("Failed to create local app data store", "error", err)
			os.Exit(1)
		}
		slog.Info("App data on local disk", "dir", cfg.DataDir)
		return store
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()

	backend := setupConfigBackend(ctx, cfg, reg)
	defer backend.close()

	instance, err := instanceID(ctx, cfg, backend.store)
	if err != nil {
		slog.Error("Failed to resolve instance id", "error", err)
		os.Exit(1)
	}

	defaults := theming.NewDefaults(backend.store, cfg.ThemingReplaceIcons)
	images := theming.NewAppImages(os.DirFS(cfg.AppImagesDir))
	icons := app.NewIconService(app.IconServiceDeps{
		Config:   backend.store,
		AppData:  setupAppData(ctx, cfg, instance),
		Images:   images,
		Defaults: defaults,
		Builder:  theming.NewIconBuilder(images, defaults),
		Clock:    clock,
		Metrics:  metrics.NewIconMetrics(reg),
	})

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		AppConfig:      app.NewAppConfigService(backend.store),
		Icons:          icons,
		HealthChecks:   backend.healthChecks,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		ErrorMetrics:   metrics.NewErrorMetrics(reg),
		MetricsHandler: metrics.Handler(reg),
		Clock:          clock,
	})

	done := runGracefulShutdown(srv, cancel)

	slog.Info("Server starting", "port", cfg.Port, "instance_id", instance)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
