package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/metrics"
	"github.com/ErlanBelekov/channel-gate/internal/window"
)

// WindowGauges keeps the window_open and window_days_until_open gauges
// current.
type WindowGauges struct {
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewWindowGauges(interval time.Duration, logger *slog.Logger) *WindowGauges {
	return &WindowGauges{
		interval: interval,
		logger:   logger.With("component", "window_gauges"),
		now:      time.Now,
	}
}

func (g *WindowGauges) Start(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.logger.Info("window gauges started", "interval", g.interval)
	g.Refresh(g.now())

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("window gauges shut down")
			return
		case <-ticker.C:
			g.Refresh(g.now())
		}
	}
}

func (g *WindowGauges) Refresh(now time.Time) window.Status {
	st := window.StatusOf(now)
	if st.IsOpen {
		metrics.WindowOpen.Set(1)
	} else {
		metrics.WindowOpen.Set(0)
	}
	metrics.WindowDaysUntilOpen.Set(float64(st.DaysUntilOpen))
	return st
}
