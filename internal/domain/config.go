package domain

import (
	"context"
	"strings"
)

// CoreApp is the app id owning server-wide settings.
const CoreApp = "core"

// ConfigStore persists (app, key, value) triples.
// Missing keys are not an error: GetAppValue returns def and
// DeleteAppValue is a no-op.
type ConfigStore interface {
	GetAppValue(ctx context.Context, app, key, def string) (string, error)
	SetAppValue(ctx context.Context, app, key, value string) error
	GetApps(ctx context.Context) ([]string, error)
	GetAppKeys(ctx context.Context, app string) ([]string, error)
	HasKey(ctx context.Context, app, key string) (bool, error)
	DeleteAppValue(ctx context.Context, app, key string) error
	DeleteAppValues(ctx context.Context, app string) error
}

var appIDReplacer = strings.NewReplacer("\x00", "", "/", "", "\\", "", "..", "")

// CleanAppID strips characters that would let an app id escape its namespace.
// An id is canonical when CleanAppID returns it unchanged.
func CleanAppID(app string) string {
	return appIDReplacer.Replace(app)
}

// ValidAppID reports whether app is non-empty and canonical.
func ValidAppID(app string) bool {
	return app != "" && CleanAppID(app) == app
}

// IsProtectedKey reports whether a key may never be written through the API.
// Core keys prefixed "public_" or "remote_" register public and federated endpoints.
func IsProtectedKey(app, key string) bool {
	return app == CoreApp && (strings.HasPrefix(key, "public_") || strings.HasPrefix(key, "remote_"))
}
