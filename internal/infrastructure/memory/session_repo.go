// Package memory keeps invite sessions in process memory. Sessions do not
// survive a restart; use the sqlite or postgres store for recovery.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
)

type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.InviteSession
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*domain.InviteSession)}
}

func (r *SessionRepository) Create(_ context.Context, s *domain.InviteSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*domain.InviteSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) Finish(_ context.Context, id string, state domain.InviteState, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.State != domain.InviteActive {
		return nil
	}
	s.State = state
	s.EndedAt = &endedAt
	return nil
}

func (r *SessionRepository) ListActive(_ context.Context) ([]*domain.InviteSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.InviteSession
	for _, s := range r.sessions {
		if s.State == domain.InviteActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.InviteSession) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (r *SessionRepository) ListJoinedUserIDs(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{})
	var ids []int64
	for _, s := range r.sessions {
		if s.State != domain.InviteJoined {
			continue
		}
		if _, dup := seen[s.UserID]; dup {
			continue
		}
		seen[s.UserID] = struct{}{}
		ids = append(ids, s.UserID)
	}
	slices.Sort(ids)
	return ids, nil
}

// Ping always succeeds; it lets the health checker treat every store alike.
func (r *SessionRepository) Ping(_ context.Context) error { return nil }

func (r *SessionRepository) Close() error { return nil }
