// Package memory holds in-process adapters for development and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// ConfigStore is a mutex-guarded app config store.
type ConfigStore struct {
	mu   sync.RWMutex
	apps map[string]map[string]string
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{apps: make(map[string]map[string]string)}
}

func (s *ConfigStore) GetAppValue(_ context.Context, app, key, def string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.apps[app][key]; ok {
		return v, nil
	}
	return def, nil
}

// GetAppValues returns a copy of every key of app.
func (s *ConfigStore) GetAppValues(_ context.Context, app string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := maps.Clone(s.apps[app])
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

func (s *ConfigStore) SetAppValue(_ context.Context, app, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.apps[app]
	if !ok {
		keys = make(map[string]string)
		s.apps[app] = keys
	}
	keys[key] = value
	return nil
}

func (s *ConfigStore) GetApps(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.apps)), nil
}

func (s *ConfigStore) GetAppKeys(_ context.Context, app string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.apps[app])), nil
}

func (s *ConfigStore) HasKey(_ context.Context, app, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.apps[app][key]
	return ok, nil
}

func (s *ConfigStore) DeleteAppValue(_ context.Context, app, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.apps[app], key)
	if len(s.apps[app]) == 0 {
		delete(s.apps, app)
	}
	return nil
}

func (s *ConfigStore) DeleteAppValues(_ context.Context, app string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.apps, app)
	return nil
}
