package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	ctxlog "github.com/ErlanBelekov/channel-gate/internal/log"
	"github.com/gin-gonic/gin"
)

// granter is the subset of GrantUsecase the handler needs.
type granter interface {
	RequestJoin(ctx context.Context, userID int64) (domain.InviteSession, error)
	ConfirmPayment(ctx context.Context, userID int64) (domain.InviteSession, error)
	VerifyPayment(ctx context.Context, userID int64, proof string) (domain.InviteSession, error)
}

// sessions is the subset of invite.Coordinator the handler needs.
type sessions interface {
	Get(ctx context.Context, id string) (domain.InviteSession, error)
	Revoke(ctx context.Context, id string) error
	ActiveFor(userID int64) []domain.InviteSession
}

type InviteHandler struct {
	grants   granter
	sessions sessions
	logger   *slog.Logger
}

func NewInviteHandler(grants granter, sessions sessions, logger *slog.Logger) *InviteHandler {
	return &InviteHandler{
		grants:   grants,
		sessions: sessions,
		logger:   logger.With("component", "invite_handler"),
	}
}

type createInviteRequest struct {
	UserID int64             `json:"user_id" binding:"required,gt=0"`
	Flow   domain.InviteFlow `json:"flow"    binding:"omitempty,oneof=interactive payment_callback"`
}

// POST /invites
// Flow "interactive" (the default) honours the enrollment window;
// "payment_callback" is used once a payment was confirmed elsewhere.
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := ctxlog.WithUserID(c.Request.Context(), req.UserID)

	var (
		s   domain.InviteSession
		err error
	)
	if req.Flow == domain.FlowPaymentCallback {
		s, err = h.grants.ConfirmPayment(ctx, req.UserID)
	} else {
		s, err = h.grants.RequestJoin(ctx, req.UserID)
	}
	if err != nil {
		h.fail(ctx, c, "create invite", err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(s))
}

// GET /invites/:id
func (h *InviteHandler) Get(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c.Request.Context(), c, "get invite", err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s))
}

type listActiveQuery struct {
	UserID int64 `form:"user_id" binding:"required,gt=0"`
}

// GET /invites?user_id=
func (h *InviteHandler) ListActive(c *gin.Context) {
	var q listActiveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := h.sessions.ActiveFor(q.UserID)
	out := make([]sessionResponse, 0, len(active))
	for _, s := range active {
		out = append(out, toSessionResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// DELETE /invites/:id
// Revoking a session that already ended is a no-op and still returns 204.
func (h *InviteHandler) Revoke(c *gin.Context) {
	ctx := ctxlog.WithSessionID(c.Request.Context(), c.Param("id"))
	if err := h.sessions.Revoke(ctx, c.Param("id")); err != nil {
		h.fail(ctx, c, "revoke invite", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type verifyPaymentRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Proof  string `json:"proof"   binding:"required"`
}

// POST /payments/verify
func (h *InviteHandler) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := ctxlog.WithUserID(c.Request.Context(), req.UserID)

	s, err := h.grants.VerifyPayment(ctx, req.UserID, req.Proof)
	if err != nil {
		h.fail(ctx, c, "verify payment", err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(s))
}

func (h *InviteHandler) fail(ctx context.Context, c *gin.Context, op string, err error) {
	if writeDomainError(c, err) {
		h.logger.InfoContext(ctx, op+" refused", "error", err)
		return
	}
	h.logger.ErrorContext(ctx, op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}
