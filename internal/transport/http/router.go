package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/channel-gate/internal/transport/http/handler"
	"github.com/ErlanBelekov/channel-gate/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, inviteHandler *handler.InviteHandler, windowHandler *handler.WindowHandler, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	// Public
	r.GET("/window", windowHandler.Status)

	authMW := middleware.Auth(jwtKey)

	invites := r.Group("/invites", authMW)
	invites.POST("", inviteHandler.Create)
	invites.GET("", inviteHandler.ListActive)
	invites.GET("/:id", inviteHandler.Get)
	invites.DELETE("/:id", inviteHandler.Revoke)

	r.POST("/payments/verify", authMW, inviteHandler.VerifyPayment)
	r.POST("/welcome", authMW, windowHandler.Welcome)

	return r
}
