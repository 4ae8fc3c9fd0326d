package handler

import (
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
)

type sessionResponse struct {
	ID        string             `json:"id"`
	UserID    int64              `json:"user_id"`
	Link      string             `json:"link"`
	Flow      domain.InviteFlow  `json:"flow"`
	State     domain.InviteState `json:"state"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
}

func toSessionResponse(s domain.InviteSession) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		Link:      s.LinkToken,
		Flow:      s.Flow,
		State:     s.State,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		EndedAt:   s.EndedAt,
	}
}
