package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Session writes are rare (one per issue and one per terminal transition),
	// so a small pool is plenty.
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return pool, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS invite_sessions (
			id          TEXT        PRIMARY KEY,
			user_id     BIGINT      NOT NULL,
			link_token  TEXT        NOT NULL,
			flow        TEXT        NOT NULL,
			state       TEXT        NOT NULL DEFAULT 'active',
			created_at  TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL,
			ended_at    TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_invite_sessions_active
			ON invite_sessions (created_at) WHERE state = 'active';
		CREATE INDEX IF NOT EXISTS idx_invite_sessions_user_state
			ON invite_sessions (user_id, state);`)
	return err
}
