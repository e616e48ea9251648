package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/omigeot/server/internal/domain"
)

// AppConfigService validates requests before they reach the config store.
type AppConfigService struct {
	store domain.ConfigStore
}

func NewAppConfigService(store domain.ConfigStore) *AppConfigService {
	return &AppConfigService{store: store}
}

// GetValue returns the stored value, or def when the key is not set.
func (s *AppConfigService) GetValue(ctx context.Context, app, key, def string) (string, error) {
	if err := verifyAppID(app); err != nil {
		return "", err
	}
	return s.store.GetAppValue(ctx, app, key, def)
}

// SetValue writes a value unless the key is protected.
func (s *AppConfigService) SetValue(ctx context.Context, app, key, value string) error {
	if err := verifyAppID(app); err != nil {
		return err
	}
	if domain.IsProtectedKey(app, key) {
		slog.WarnContext(ctx, "Rejected write to protected config key", "app", app, "key", key)
		return domain.ErrForbiddenKey
	}

	if err := s.store.SetAppValue(ctx, app, key, value); err != nil {
		return fmt.Errorf("set %s/%s: %w", app, key, err)
	}
	slog.InfoContext(ctx, "Config value set", "app", app, "key", key)
	return nil
}

// GetApps lists apps that have at least one key, sorted.
func (s *AppConfigService) GetApps(ctx context.Context) ([]string, error) {
	apps, err := s.store.GetApps(ctx)
	if err != nil {
		return nil, err
	}
	return sortedList(apps), nil
}

// GetKeys lists the keys of an app, sorted.
func (s *AppConfigService) GetKeys(ctx context.Context, app string) ([]string, error) {
	if err := verifyAppID(app); err != nil {
		return nil, err
	}
	keys, err := s.store.GetAppKeys(ctx, app)
	if err != nil {
		return nil, err
	}
	return sortedList(keys), nil
}

func (s *AppConfigService) HasKey(ctx context.Context, app, key string) (bool, error) {
	if err := verifyAppID(app); err != nil {
		return false, err
	}
	return s.store.HasKey(ctx, app, key)
}

// DeleteKey succeeds whether or not the key existed.
func (s *AppConfigService) DeleteKey(ctx context.Context, app, key string) error {
	if err := verifyAppID(app); err != nil {
		return err
	}
	if err := s.store.DeleteAppValue(ctx, app, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", app, key, err)
	}
	slog.InfoContext(ctx, "Config value deleted", "app", app, "key", key)
	return nil
}

func (s *AppConfigService) DeleteApp(ctx context.Context, app string) error {
	if err := verifyAppID(app); err != nil {
		return err
	}
	if err := s.store.DeleteAppValues(ctx, app); err != nil {
		return fmt.Errorf("delete app %s: %w", app, err)
	}
	slog.InfoContext(ctx, "Config app deleted", "app", app)
	return nil
}

// sortedList sorts in place and never returns nil, so an empty listing
// encodes as [] whatever the backend.
func sortedList(list []string) []string {
	if list == nil {
		return []string{}
	}
	slices.Sort(list)
	return list
}

func verifyAppID(app string) error {
	if !domain.ValidAppID(app) {
		return domain.ErrInvalidAppID
	}
	return nil
}
