package theming

import (
	"context"
	"fmt"
)

type mockConfigStore struct {
	getAppValueFn func(ctx context.Context, app, key, def string) (string, error)
}

func (m *mockConfigStore) GetAppValue(ctx context.Context, app, key, def string) (string, error) {
	if m.getAppValueFn != nil {
		return m.getAppValueFn(ctx, app, key, def)
	}
	return def, nil
}

func (m *mockConfigStore) SetAppValue(context.Context, string, string, string) error {
	return fmt.Errorf("not implemented")
}

func (m *mockConfigStore) GetApps(context.Context) ([]string, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockConfigStore) GetAppKeys(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockConfigStore) HasKey(context.Context, string, string) (bool, error) {
	return false, fmt.Errorf("not implemented")
}

func (m *mockConfigStore) DeleteAppValue(context.Context, string, string) error {
	return fmt.Errorf("not implemented")
}

func (m *mockConfigStore) DeleteAppValues(context.Context, string) error {
	return fmt.Errorf("not implemented")
}

type fixedDefaults struct {
	color   string
	replace bool
}

func (d fixedDefaults) Color(context.Context) (string, error) { return d.color, nil }
func (d fixedDefaults) ShouldReplaceIcons() bool              { return d.replace }
