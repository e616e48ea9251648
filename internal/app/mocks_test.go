package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// --- Mock implementations ---

type mockConfigStore struct {
	getAppValueFn     func(ctx context.Context, app, key, def string) (string, error)
	setAppValueFn     func(ctx context.Context, app, key, value string) error
	getAppsFn         func(ctx context.Context) ([]string, error)
	getAppKeysFn      func(ctx context.Context, app string) ([]string, error)
	hasKeyFn          func(ctx context.Context, app, key string) (bool, error)
	deleteAppValueFn  func(ctx context.Context, app, key string) error
	deleteAppValuesFn func(ctx context.Context, app string) error
}

func (m *mockConfigStore) GetAppValue(ctx context.Context, app, key, def string) (string, error) {
	if m.getAppValueFn != nil {
		return m.getAppValueFn(ctx, app, key, def)
	}
	return def, nil
}

func (m *mockConfigStore) SetAppValue(ctx context.Context, app, key, value string) error {
	if m.setAppValueFn != nil {
		return m.setAppValueFn(ctx, app, key, value)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockConfigStore) GetApps(ctx context.Context) ([]string, error) {
	if m.getAppsFn != nil {
		return m.getAppsFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockConfigStore) GetAppKeys(ctx context.Context, app string) ([]string, error) {
	if m.getAppKeysFn != nil {
		return m.getAppKeysFn(ctx, app)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockConfigStore) HasKey(ctx context.Context, app, key string) (bool, error) {
	if m.hasKeyFn != nil {
		return m.hasKeyFn(ctx, app, key)
	}
	return false, fmt.Errorf("not implemented")
}

func (m *mockConfigStore) DeleteAppValue(ctx context.Context, app, key string) error {
	if m.deleteAppValueFn != nil {
		return m.deleteAppValueFn(ctx, app, key)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockConfigStore) DeleteAppValues(ctx context.Context, app string) error {
	if m.deleteAppValuesFn != nil {
		return m.deleteAppValuesFn(ctx, app)
	}
	return fmt.Errorf("not implemented")
}

type mockImages struct {
	calls      atomic.Int32
	appImageFn func(app, image string) ([]byte, error)
}

func (m *mockImages) AppImage(app, image string) ([]byte, error) {
	m.calls.Add(1)
	if m.appImageFn != nil {
		return m.appImageFn(app, image)
	}
	return []byte(`<svg><path fill="#0082C9"/></svg>`), nil
}

type mockDefaults struct {
	color   string
	replace bool
}

func (m *mockDefaults) Color(context.Context) (string, error) { return m.color, nil }
func (m *mockDefaults) ShouldReplaceIcons() bool              { return m.replace }

type mockBuilder struct {
	faviconCalls   atomic.Int32
	touchIconCalls atomic.Int32
	touchIconFn    func(ctx context.Context, app string) ([]byte, error)
}

func (m *mockBuilder) Favicon(_ context.Context, app string) ([]byte, error) {
	n := m.faviconCalls.Add(1)
	return fmt.Appendf(nil, "ico:%s:%d", app, n), nil
}

func (m *mockBuilder) TouchIcon(ctx context.Context, app string) ([]byte, error) {
	n := m.touchIconCalls.Add(1)
	if m.touchIconFn != nil {
		return m.touchIconFn(ctx, app)
	}
	return fmt.Appendf(nil, "png:%s:%d", app, n), nil
}

type recordingIconMetrics struct {
	hits, misses, rollovers atomic.Int32
}

func (m *recordingIconMetrics) CacheHit(string)                 { m.hits.Add(1) }
func (m *recordingIconMetrics) CacheMiss(string)                { m.misses.Add(1) }
func (m *recordingIconMetrics) Generated(string, time.Duration) {}
func (m *recordingIconMetrics) FolderRollover(int)              { m.rollovers.Add(1) }
