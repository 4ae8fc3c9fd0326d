package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	ctxlog "github.com/ErlanBelekov/channel-gate/internal/log"
	"github.com/ErlanBelekov/channel-gate/internal/window"
	"github.com/gin-gonic/gin"
)

// windowUsecaser is the subset of WindowUsecase the handler needs.
type windowUsecaser interface {
	Status(t time.Time) window.Status
	Welcome(ctx context.Context, userID int64, displayName string) (window.Status, error)
}

type WindowHandler struct {
	windows windowUsecaser
	now     func() time.Time
	logger  *slog.Logger
}

func NewWindowHandler(windows windowUsecaser, logger *slog.Logger) *WindowHandler {
	return &WindowHandler{
		windows: windows,
		now:     time.Now,
		logger:  logger.With("component", "window_handler"),
	}
}

type windowResponse struct {
	IsOpen        bool   `json:"is_open"`
	OpensOn       string `json:"opens_on"`
	ClosesOn      string `json:"closes_on"`
	OpensOnLabel  string `json:"opens_on_label"`
	ClosesOnLabel string `json:"closes_on_label"`
	DaysUntilOpen int    `json:"days_until_open"`
}

func toWindowResponse(st window.Status) windowResponse {
	return windowResponse{
		IsOpen:        st.IsOpen,
		OpensOn:       st.OpensOn.String(),
		ClosesOn:      st.ClosesOn.String(),
		OpensOnLabel:  st.OpensOn.Label(),
		ClosesOnLabel: st.ClosesOn.Label(),
		DaysUntilOpen: st.DaysUntilOpen,
	}
}

// GET /window?at=2025-04-30T09:00:00Z
// Without "at" the current instant is used.
func (h *WindowHandler) Status(c *gin.Context) {
	at := h.now()
	if raw := c.Query("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidAt})
			return
		}
		at = t
	}
	c.JSON(http.StatusOK, toWindowResponse(h.windows.Status(at)))
}

type welcomeRequest struct {
	UserID      int64  `json:"user_id"      binding:"required,gt=0"`
	DisplayName string `json:"display_name" binding:"max=128"`
}

// POST /welcome
func (h *WindowHandler) Welcome(c *gin.Context) {
	var req welcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := ctxlog.WithUserID(c.Request.Context(), req.UserID)

	st, err := h.windows.Welcome(ctx, req.UserID, req.DisplayName)
	if err != nil {
		h.logger.ErrorContext(ctx, "welcome", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusAccepted, toWindowResponse(st))
}
