package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.InviteSession) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invite_sessions (id, user_id, link_token, flow, state, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.LinkToken, s.Flow, s.State, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.InviteSession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, link_token, flow, state, created_at, expires_at, ended_at
		FROM invite_sessions
		WHERE id = $1`, id)
	return scanSession(row)
}

func (r *SessionRepository) Finish(ctx context.Context, id string, state domain.InviteState, endedAt time.Time) error {
	// The state guard keeps the first terminal write; later ones match no rows.
	tag, err := r.pool.Exec(ctx, `
		UPDATE invite_sessions
		SET    state = $2, ended_at = $3
		WHERE  id = $1 AND state = 'active'`,
		id, state, endedAt,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *SessionRepository) ListActive(ctx context.Context) ([]*domain.InviteSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, link_token, flow, state, created_at, expires_at, ended_at
		FROM invite_sessions
		WHERE state = 'active'
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
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM invite_sessions
		WHERE state = 'joined'
		ORDER BY user_id`)
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
	return r.pool.Ping(ctx)
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.InviteSession, error) {
	var s domain.InviteSession
	err := row.Scan(
		&s.ID, &s.UserID, &s.LinkToken, &s.Flow, &s.State,
		&s.CreatedAt, &s.ExpiresAt, &s.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}
