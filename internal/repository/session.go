package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
)

// SessionRepository persists invite sessions so a restarted coordinator can
// resume supervising them. The coordinator owns the lifecycle; the store
// only records it.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.InviteSession) error
	GetByID(ctx context.Context, id string) (*domain.InviteSession, error)

	// Finish moves an active session into a terminal state. Finishing a
	// session that is no longer active is a no-op.
	Finish(ctx context.Context, id string, state domain.InviteState, endedAt time.Time) error

	// ListActive returns sessions still in the active state, oldest first.
	ListActive(ctx context.Context) ([]*domain.InviteSession, error)
}

// MemberDirectory lists users admitted to the channel through an invite.
// The purge job uses it because the platform cannot enumerate members.
type MemberDirectory interface {
	ListJoinedUserIDs(ctx context.Context) ([]int64, error)
}
