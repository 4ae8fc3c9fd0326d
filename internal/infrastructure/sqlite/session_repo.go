package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
)

// Timestamps are stored as unix milliseconds.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.InviteSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invite_sessions (id, user_id, link_token, flow, state, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.LinkToken, string(s.Flow), string(s.State),
		s.CreatedAt.UnixMilli(), s.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.InviteSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, link_token, flow, state, created_at, expires_at, ended_at
		FROM invite_sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (r *SessionRepository) Finish(ctx context.Context, id string, state domain.InviteState, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invite_sessions SET state = ?, ended_at = ?
		WHERE id = ? AND state = 'active'`,
		string(state), endedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *SessionRepository) ListActive(ctx context.Context) ([]*domain.InviteSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, link_token, flow, state, created_at, expires_at, ended_at
		FROM invite_sessions WHERE state = 'active'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.InviteSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) ListJoinedUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM invite_sessions
		WHERE state = 'joined' ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list joined users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SessionRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.InviteSession, error) {
	var (
		s                    domain.InviteSession
		flow, state          string
		createdAt, expiresAt int64
		endedAt              sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.UserID, &s.LinkToken, &flow, &state, &createdAt, &expiresAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.Flow = domain.InviteFlow(flow)
	s.State = domain.InviteState(state)
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64).UTC()
		s.EndedAt = &t
	}
	return &s, nil
}
