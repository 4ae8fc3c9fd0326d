package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/ErlanBelekov/channel-gate/internal/invite"
	"github.com/ErlanBelekov/channel-gate/internal/messages"
	"github.com/ErlanBelekov/channel-gate/internal/payment"
	"github.com/ErlanBelekov/channel-gate/internal/window"
)

// Interfaces are defined here, at the point of use.

type InviteIssuer interface {
	Issue(ctx context.Context, req invite.IssueRequest) (domain.InviteSession, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, txHash string) (payment.Verification, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Texts is satisfied by *messages.Catalog.
type Texts interface {
	Text(key string) string
	Render(key string, data map[string]any) (string, error)
	InviteText(flow domain.InviteFlow, link string, ttl time.Duration) (string, error)
}

// proofPrefix is the deep-link payload the payment page hands back through /start.
const proofPrefix = "payment_success_"

type GrantConfig struct {
	ShortTTL          time.Duration
	LongTTL           time.Duration
	RequireOpenWindow bool
	ForceWindowOpen   bool
	Now               func() time.Time
}

// GrantUsecase turns an approved request into a delivered invite.
type GrantUsecase struct {
	issuer   InviteIssuer
	verifier PaymentVerifier
	notifier Notifier
	texts    Texts
	cfg      GrantConfig
	logger   *slog.Logger
}

func NewGrantUsecase(issuer InviteIssuer, verifier PaymentVerifier, notifier Notifier, texts Texts, cfg GrantConfig, logger *slog.Logger) *GrantUsecase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &GrantUsecase{
		issuer:   issuer,
		verifier: verifier,
		notifier: notifier,
		texts:    texts,
		cfg:      cfg,
		logger:   logger.With("component", "grant"),
	}
}

// RequestJoin handles the interactive "join channel" action.
func (u *GrantUsecase) RequestJoin(ctx context.Context, userID int64) (domain.InviteSession, error) {
	if u.cfg.RequireOpenWindow && !u.cfg.ForceWindowOpen {
		st := window.StatusOf(u.cfg.Now())
		if !st.IsOpen {
			text, err := u.texts.Render(messages.WindowClosed, map[string]any{"OpensOn": st.OpensOn.Label()})
			if err == nil {
				u.notify(ctx, userID, text)
			}
			return domain.InviteSession{}, domain.ErrWindowClosed
		}
	}
	return u.grant(ctx, userID, domain.FlowInteractive, u.cfg.LongTTL)
}

// ConfirmPayment handles the callback sent once a payment was verified
// elsewhere.
func (u *GrantUsecase) ConfirmPayment(ctx context.Context, userID int64) (domain.InviteSession, error) {
	return u.grant(ctx, userID, domain.FlowPaymentCallback, u.cfg.LongTTL)
}

// VerifyPayment checks a transaction hash on chain and, if it proves
// payment, grants a short-lived invite. proof may carry the deep-link prefix.
func (u *GrantUsecase) VerifyPayment(ctx context.Context, userID int64, proof string) (domain.InviteSession, error) {
	txHash := strings.TrimPrefix(strings.TrimSpace(proof), proofPrefix)
	if !payment.ValidTxHash(txHash) {
		u.notify(ctx, userID, u.texts.Text(messages.ProofInvalid))
		return domain.InviteSession{}, domain.ErrInvalidProof
	}

	v, err := u.verifier.Verify(ctx, txHash)
	if err != nil {
		u.logger.ErrorContext(ctx, "verify payment", "tx_hash", txHash, "error", err)
		u.notify(ctx, userID, u.texts.Text(messages.ProofError))
		return domain.InviteSession{}, fmt.Errorf("%w: verify payment: %v", domain.ErrCollaboratorUnavailable, err)
	}
	if !v.Verified {
		u.logger.InfoContext(ctx, "payment rejected", "tx_hash", txHash, "reason", v.Reason)
		if text, err := u.texts.Render(messages.ProofRejected, map[string]any{"Reason": v.Reason}); err == nil {
			u.notify(ctx, userID, text)
		}
		return domain.InviteSession{}, fmt.Errorf("%w: %w", domain.ErrPaymentNotVerified, &payment.RejectedError{Reason: v.Reason})
	}

	u.logger.InfoContext(ctx, "payment verified", "tx_hash", txHash, "amount", v.Amount)
	return u.grant(ctx, userID, domain.FlowPaymentProof, u.cfg.ShortTTL)
}

func (u *GrantUsecase) grant(ctx context.Context, userID int64, flow domain.InviteFlow, ttl time.Duration) (domain.InviteSession, error) {
	s, err := u.issuer.Issue(ctx, invite.IssueRequest{UserID: userID, TTL: ttl, Flow: flow})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyMember):
		u.notify(ctx, userID, u.texts.Text(messages.AlreadyMember))
		return domain.InviteSession{}, err
	case errors.Is(err, domain.ErrCollaboratorUnavailable):
		u.logger.ErrorContext(ctx, "issue invite", "flow", flow, "error", err)
		u.notify(ctx, userID, u.texts.Text(messages.InviteFailed))
		return domain.InviteSession{}, err
	default:
		return domain.InviteSession{}, fmt.Errorf("issue invite: %w", err)
	}

	text, err := u.texts.InviteText(flow, s.LinkToken, s.TTL())
	if err != nil {
		// The session is live; the user can still be sent the link by support.
		u.logger.ErrorContext(ctx, "render invite text", "session_id", s.ID, "error", err)
		return s, nil
	}
	u.notify(ctx, userID, text)
	return s, nil
}

// notify is best effort; a failed send is logged, never returned.
func (u *GrantUsecase) notify(ctx context.Context, userID int64, text string) {
	if err := u.notifier.Notify(ctx, userID, text); err != nil {
		u.logger.WarnContext(ctx, "notify user", "user_id", userID, "error", err)
	}
}
