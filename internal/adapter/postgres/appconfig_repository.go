package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AppConfigRepo stores config values in the appconfig table.
type AppConfigRepo struct {
	pool *pgxpool.Pool
}

func NewAppConfigRepo(pool *pgxpool.Pool) *AppConfigRepo {
	return &AppConfigRepo{pool: pool}
}

func (r *AppConfigRepo) GetAppValue(ctx context.Context, app, key, def string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT configvalue FROM appconfig WHERE appid = $1 AND configkey = $2`,
		app, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config value: %w", err)
	}
	return value, nil
}

// GetAppValues returns every key of an app. Used to fill caches in one round trip.
func (r *AppConfigRepo) GetAppValues(ctx context.Context, app string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT configkey, configvalue FROM appconfig WHERE appid = $1`,
		app,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get config values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config value: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config values: %w", err)
	}
	return values, nil
}

func (r *AppConfigRepo) SetAppValue(ctx context.Context, app, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appconfig (appid, configkey, configvalue, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (appid, configkey)
		DO UPDATE SET configvalue = EXCLUDED.configvalue, updated_at = NOW()
		WHERE appconfig.configvalue IS DISTINCT FROM EXCLUDED.configvalue`,
		app, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set config value: %w", err)
	}
	return nil
}

func (r *AppConfigRepo) GetApps(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT appid FROM appconfig ORDER BY appid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	apps, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	return apps, nil
}

func (r *AppConfigRepo) GetAppKeys(ctx context.Context, app string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT configkey FROM appconfig WHERE appid = $1 ORDER BY configkey`,
		app,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list config keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list config keys: %w", err)
	}
	return keys, nil
}

func (r *AppConfigRepo) HasKey(ctx context.Context, app, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appconfig WHERE appid = $1 AND configkey = $2)`,
		app, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check config key: %w", err)
	}
	return exists, nil
}

func (r *AppConfigRepo) DeleteAppValue(ctx context.Context, app, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM appconfig WHERE appid = $1 AND configkey = $2`, app, key); err != nil {
		return fmt.Errorf("failed to delete config value: %w", err)
	}
	return nil
}

func (r *AppConfigRepo) DeleteAppValues(ctx context.Context, app string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM appconfig WHERE appid = $1`, app); err != nil {
		return fmt.Errorf("failed to delete app config: %w", err)
	}
	return nil
}
