package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Telegram
	TelegramBotToken  string `env:"TELEGRAM_BOT_TOKEN,required" validate:"required"`
	TelegramChannelID string `env:"TELEGRAM_CHANNEL_ID,required" validate:"required"`
	TelegramAPIBase   string `env:"TELEGRAM_API_BASE" envDefault:"https://api.telegram.org" validate:"url"`

	// Invite lifecycle
	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"10s" validate:"min=1s"`
	ShortInviteTTL       time.Duration `env:"SHORT_INVITE_TTL" envDefault:"1h" validate:"gt=0"`
	LongInviteTTL        time.Duration `env:"LONG_INVITE_TTL" envDefault:"24h" validate:"gt=0"`
	SessionPolicy        string        `env:"SESSION_POLICY" envDefault:"replace" validate:"oneof=allow reject replace"`
	MaxCollaboratorCalls int64         `env:"MAX_COLLABORATOR_CALLS" envDefault:"16" validate:"min=1,max=1000"`
	CollaboratorTimeout  time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	// Session store
	SessionStore string `env:"SESSION_STORE" envDefault:"sqlite" validate:"oneof=memory sqlite postgres"`
	DatabaseURL  string `env:"DATABASE_URL" validate:"required_if=SessionStore postgres"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"channel-gate.db" validate:"required_if=SessionStore sqlite"`

	// Purge
	PurgeCron         string        `env:"PURGE_CRON" envDefault:"0 23 * * *" validate:"required"`
	PurgeKickDuration time.Duration `env:"PURGE_KICK_DURATION" envDefault:"31s" validate:"min=30s"`
	PurgeLiftDelay    time.Duration `env:"PURGE_LIFT_DELAY" envDefault:"32s" validate:"gtfield=PurgeKickDuration"`
	PurgeConcurrency  int           `env:"PURGE_CONCURRENCY" envDefault:"4" validate:"min=1,max=64"`

	// Grant flows
	RequireOpenWindow bool   `env:"REQUIRE_OPEN_WINDOW" envDefault:"false"`
	ForceWindowOpen   bool   `env:"FORCE_WINDOW_OPEN" envDefault:"false"`
	PaymentURL        string `env:"PAYMENT_URL" validate:"omitempty,url"`
	MessagesFile      string `env:"MESSAGES_FILE"`

	// Payment proof verification
	TronAPIBase         string `env:"TRON_API_BASE" envDefault:"https://api.trongrid.io" validate:"url"`
	TronAPIKey          string `env:"TRON_API_KEY"`
	TronMerchantAddress string `env:"TRON_MERCHANT_ADDRESS"`
	USDTContractAddress string `env:"USDT_CONTRACT_ADDRESS" envDefault:"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"`
	USDTMinAmount       string `env:"USDT_MIN_AMOUNT" envDefault:"0"`

	// API auth
	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	// Operator alerts
	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
	OpsEmail     string `env:"OPS_EMAIL" validate:"omitempty,email"`

	// Event stream, disabled when no brokers are set.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"invite-lifecycle"`

	// Tracing, disabled when empty.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
