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
	"github.com/ErlanBelekov/channel-gate/internal/email"
	"github.com/ErlanBelekov/channel-gate/internal/health"
	"github.com/ErlanBelekov/channel-gate/internal/infrastructure/store"
	ctxlog "github.com/ErlanBelekov/channel-gate/internal/log"
	"github.com/ErlanBelekov/channel-gate/internal/messages"
	"github.com/ErlanBelekov/channel-gate/internal/metrics"
	"github.com/ErlanBelekov/channel-gate/internal/purge"
	"github.com/ErlanBelekov/channel-gate/internal/scheduler"
	"github.com/ErlanBelekov/channel-gate/internal/telegram"
	"github.com/ErlanBelekov/channel-gate/internal/telemetry"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	shutdownTracing, err := telemetry.Setup(ctx, "channel-gate-scheduler", cfg.OTelEndpoint)
	if err != nil {
		stop()
		log.Fatalf("telemetry: %v", err)
	}

	if cfg.SessionStore == store.KindMemory {
		logger.Warn("memory session store is per process, the purge will find no members")
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

	metrics.Register()

	bot := telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramBotToken, &http.Client{Timeout: 30 * time.Second})
	channel := telegram.NewChannel(bot, cfg.TelegramChannelID, logger)

	checker := health.NewChecker(map[string]health.Pinger{
		"session_store": sessions,
		"telegram":      channel,
	}, logger, prometheus.DefaultRegisterer)

	purger := purge.NewPurger(
		sessions,
		channel,
		email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger),
		texts,
		purge.Config{
			KickDuration: cfg.PurgeKickDuration,
			LiftDelay:    cfg.PurgeLiftDelay,
			Concurrency:  cfg.PurgeConcurrency,
			OpsEmail:     cfg.OpsEmail,
		},
		logger,
	)

	dispatcher, err := scheduler.NewDispatcher(cfg.PurgeCron, purger, logger)
	if err != nil {
		stop()
		log.Fatalf("dispatcher: %v", err)
	}

	done := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(done)
	}()

	gauges := scheduler.NewWindowGauges(time.Minute, logger)
	go gauges.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	// A purge in progress finishes its lift phase before exit.
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
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
