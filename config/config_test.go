package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/channel-gate/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHANNEL_ID", "-1001234567890")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.ShortInviteTTL != time.Hour || cfg.LongInviteTTL != 24*time.Hour {
		t.Errorf("TTLs = %v / %v", cfg.ShortInviteTTL, cfg.LongInviteTTL)
	}
	if cfg.SessionPolicy != "replace" || cfg.SessionStore != "sqlite" {
		t.Errorf("policy/store = %s/%s", cfg.SessionPolicy, cfg.SessionStore)
	}
	if cfg.PurgeKickDuration != 31*time.Second || cfg.PurgeLiftDelay != 32*time.Second {
		t.Errorf("purge timings = %v / %v", cfg.PurgeKickDuration, cfg.PurgeLiftDelay)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown policy", "SESSION_POLICY", "sometimes"},
		{"unknown store", "SESSION_STORE", "redis"},
		{"postgres without url", "SESSION_STORE", "postgres"},
		{"lift before kick ends", "PURGE_LIFT_DELAY", "10s"},
		{"sub-second poll", "POLL_INTERVAL", "100ms"},
		{"production without resend", "ENV", "production"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			if _, err := config.Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_KafkaBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
}
