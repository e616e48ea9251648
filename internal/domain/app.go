package domain

import (
	"context"
	"time"
)

// AppConfigService validates and serves config CRUD requests.
type AppConfigService interface {
	GetValue(ctx context.Context, app, key, def string) (string, error)
	SetValue(ctx context.Context, app, key, value string) error
	GetApps(ctx context.Context) ([]string, error)
	GetKeys(ctx context.Context, app string) ([]string, error)
	HasKey(ctx context.Context, app, key string) (bool, error)
	DeleteKey(ctx context.Context, app, key string) error
	DeleteApp(ctx context.Context, app string) error
}

// Icon is a cached, ready-to-serve image.
type Icon struct {
	Content     []byte
	ContentType string
}

// IconService serves themed icons out of the app-data cache.
type IconService interface {
	ThemedIcon(ctx context.Context, app, image string) (*Icon, error)
	Favicon(ctx context.Context, app string) (*Icon, error)
	TouchIcon(ctx context.Context, app string) (*Icon, error)
	// Expires returns the absolute expiry for a response served now.
	Expires() time.Time
	BumpCacheBuster(ctx context.Context) (string, error)
}
