package domain

import (
	"errors"
	"time"
)

var (
	ErrAlreadyMember           = errors.New("user is already a member of the channel")
	ErrCollaboratorUnavailable = errors.New("channel platform unavailable")
	ErrSessionActive           = errors.New("user already has an active invite")
	ErrSessionNotFound         = errors.New("invite session not found")
	ErrRevokeFailed            = errors.New("invite link revocation failed")
	ErrWindowClosed            = errors.New("enrollment window is closed")
	ErrInvalidProof            = errors.New("payment proof is missing or malformed")
	ErrPaymentNotVerified      = errors.New("payment could not be verified")
	ErrInvalidRequest          = errors.New("invalid invite request")
)

type InviteState string

const (
	InviteActive  InviteState = "active"
	InviteJoined  InviteState = "joined"
	InviteExpired InviteState = "expired"
	InviteRevoked InviteState = "revoked"
)

// Terminal reports whether no further transitions can follow s.
func (s InviteState) Terminal() bool {
	return s == InviteJoined || s == InviteExpired || s == InviteRevoked
}

// InviteFlow names the entry point that granted the invite.
type InviteFlow string

const (
	FlowInteractive     InviteFlow = "interactive"
	FlowPaymentCallback InviteFlow = "payment_callback"
	FlowPaymentProof    InviteFlow = "payment_proof"
)

type InviteSession struct {
	ID        string
	UserID    int64
	LinkToken string // single-use invite link minted by the platform
	Flow      InviteFlow

	State     InviteState
	CreatedAt time.Time
	ExpiresAt time.Time
	EndedAt   *time.Time // nil while active
}

// TTL is the lifetime the session was issued with.
func (s InviteSession) TTL() time.Duration {
	return s.ExpiresAt.Sub(s.CreatedAt)
}

// InviteEvent is published on every lifecycle change.
type InviteEvent struct {
	SessionID  string      `json:"session_id"`
	UserID     int64       `json:"user_id"`
	Flow       InviteFlow  `json:"flow"`
	State      InviteState `json:"state"`
	OccurredAt time.Time   `json:"occurred_at"`
}
