package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendS3       = "s3"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	ConfigBackend  string        `env:"CONFIG_BACKEND" default:"postgres"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ConfigCacheTTL time.Duration `env:"CONFIG_CACHE_TTL" default:"10s"`

	AppDataBackend string `env:"APPDATA_BACKEND" default:"local"`
	DataDir        string `env:"DATA_DIR" default:"./data"`
	InstanceID     string `env:"INSTANCE_ID"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3Region       string `env:"S3_REGION" default:"us-east-1"`

	ThemingReplaceIcons bool   `env:"THEMING_REPLACE_ICONS" default:"true"`
	AppImagesDir        string `env:"APP_IMAGES_DIR" default:"./apps"`

	SessionSecret              string        `env:"SESSION_SECRET"`
	SessionMaxAge              time.Duration `env:"SESSION_MAX_AGE" default:"24h"`
	AdminUser                  string        `env:"ADMIN_USER" default:"admin"`
	AdminPasswordHash          string        `env:"ADMIN_PASSWORD_HASH"`
	PasswordConfirmationMaxAge time.Duration `env:"PASSWORD_CONFIRMATION_MAX_AGE" default:"30m"`
	LoginRateLimitPerSecond    float64       `env:"LOGIN_RATE_LIMIT_PER_SECOND" default:"0.5"`
	LoginRateLimitBurst        int           `env:"LOGIN_RATE_LIMIT_BURST" default:"5"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"SESSION_SECRET":      cfg.SessionSecret,
		"ADMIN_PASSWORD_HASH": cfg.AdminPasswordHash,
	}

	switch cfg.ConfigBackend {
	case BackendPostgres:
		required["DATABASE_URL"] = cfg.DatabaseURL
		required["REDIS_URL"] = cfg.RedisURL
	case BackendMemory:
	default:
		return fmt.Errorf("CONFIG_BACKEND must be one of %s, %s; got %q", BackendPostgres, BackendMemory, cfg.ConfigBackend)
	}

	switch cfg.AppDataBackend {
	case BackendLocal:
		required["DATA_DIR"] = cfg.DataDir
	case BackendS3:
		required["S3_BUCKET"] = cfg.S3Bucket
	case BackendMemory:
	default:
		return fmt.Errorf("APPDATA_BACKEND must be one of %s, %s, %s; got %q", BackendLocal, BackendS3, BackendMemory, cfg.AppDataBackend)
	}

	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}

	if !strings.HasPrefix(cfg.AdminPasswordHash, "$2") {
		return errors.New("ADMIN_PASSWORD_HASH must be a bcrypt hash")
	}

	if cfg.PasswordConfirmationMaxAge <= 0 {
		return errors.New("PASSWORD_CONFIRMATION_MAX_AGE must be positive")
	}

	return nil
}
