package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/channel-gate/config"
	"github.com/ErlanBelekov/channel-gate/internal/events"
	"github.com/ErlanBelekov/channel-gate/internal/health"
	"github.com/ErlanBelekov/channel-gate/internal/infrastructure/store"
	"github.com/ErlanBelekov/channel-gate/internal/invite"
	ctxlog "github.com/ErlanBelekov/channel-gate/internal/log"
	"github.com/ErlanBelekov/channel-gate/internal/messages"
	"github.com/ErlanBelekov/channel-gate/internal/metrics"
	"github.com/ErlanBelekov/channel-gate/internal/payment"
	"github.com/ErlanBelekov/channel-gate/internal/telegram"
	"github.com/ErlanBelekov/channel-gate/internal/telemetry"
	httptransport "github.com/ErlanBelekov/channel-gate/internal/transport/http"
	"github.com/ErlanBelekov/channel-gate/internal/transport/http/handler"
	"github.com/ErlanBelekov/channel-gate/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	shutdownTracing, err := telemetry.Setup(ctx, "channel-gate", cfg.OTelEndpoint)
	if err != nil {
		stop()
		log.Fatalf("telemetry: %v", err)
	}

	sessions, closeStore, err := store.Open(ctx, store.Options{
		Kind:        cfg.SessionStore,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		stop()
		log.Fatalf("session store: %v", err)
	}
	defer closeStore()
	logger.Info("session store ready", "kind", cfg.SessionStore)

	texts, err := messages.Load(cfg.MessagesFile)
	if err != nil {
		stop()
		log.Fatalf("messages: %v", err)
	}

	// Telegram
	bot := telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramBotToken, &http.Client{Timeout: 30 * time.Second})
	channel := telegram.NewChannel(bot, cfg.TelegramChannelID, logger)

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, logger)

	policy, err := invite.ParsePolicy(cfg.SessionPolicy)
	if err != nil {
		stop()
		log.Fatalf("session policy: %v", err)
	}

	metrics.Register()

	// Invite lifecycle
	coordinator := invite.NewCoordinator(invite.Deps{
		Prober:   channel,
		Links:    channel,
		Notifier: channel,
		Messages: texts,
		Store:    sessions,
		Events:   publisher,
	}, invite.Config{
		PollInterval: cfg.PollInterval,
		Policy:       policy,
		MaxCalls:     cfg.MaxCollaboratorCalls,
		CallTimeout:  cfg.CollaboratorTimeout,
	}, logger)

	if _, err := coordinator.Recover(ctx); err != nil {
		logger.Error("recover invite sessions", "error", err)
	}

	// Grant flows
	var verifier usecase.PaymentVerifier = payment.Unconfigured{}
	if cfg.TronMerchantAddress != "" {
		tron, err := payment.NewTronVerifier(payment.TronConfig{
			APIBase:   cfg.TronAPIBase,
			APIKey:    cfg.TronAPIKey,
			Merchant:  cfg.TronMerchantAddress,
			Contract:  cfg.USDTContractAddress,
			MinAmount: cfg.USDTMinAmount,
		}, nil)
		if err != nil {
			stop()
			log.Fatalf("payment verifier: %v", err)
		}
		verifier = tron
	} else {
		logger.Warn("TRON_MERCHANT_ADDRESS not set, payment proofs will be refused")
	}

	grantUsecase := usecase.NewGrantUsecase(coordinator, verifier, channel, texts, usecase.GrantConfig{
		ShortTTL:          cfg.ShortInviteTTL,
		LongTTL:           cfg.LongInviteTTL,
		RequireOpenWindow: cfg.RequireOpenWindow,
		ForceWindowOpen:   cfg.ForceWindowOpen,
	}, logger)
	windowUsecase := usecase.NewWindowUsecase(channel, texts, usecase.WindowConfig{
		ForceWindowOpen: cfg.ForceWindowOpen,
		PaymentURL:      cfg.PaymentURL,
	}, logger)

	inviteHandler := handler.NewInviteHandler(grantUsecase, coordinator, logger)
	windowHandler := handler.NewWindowHandler(windowUsecase, logger)

	checker := health.NewChecker(map[string]health.Pinger{
		"session_store": sessions,
		"telegram":      channel,
	}, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, inviteHandler, windowHandler, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	// Sessions stay active in the store and are picked up by Recover on
	// the next start.
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Error("invite coordinator shutdown", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("event publisher close", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
