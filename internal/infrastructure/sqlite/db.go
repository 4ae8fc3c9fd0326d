// Package sqlite stores invite sessions in a local SQLite file so a single
// instance can recover supervision after a restart.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS invite_sessions (
	id          TEXT    PRIMARY KEY,
	user_id     INTEGER NOT NULL,
	link_token  TEXT    NOT NULL,
	flow        TEXT    NOT NULL,
	state       TEXT    NOT NULL DEFAULT 'active',
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	ended_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_invite_sessions_state ON invite_sessions (state, created_at);
CREATE INDEX IF NOT EXISTS idx_invite_sessions_user ON invite_sessions (user_id, state);
`

// Open opens (creating if needed) and migrates the database at path.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the coordinator's goroutines.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return db, nil
}
