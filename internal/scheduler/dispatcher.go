package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/purge"
	"github.com/ErlanBelekov/channel-gate/internal/window"
	"github.com/robfig/cron/v3"
)

// Purger is satisfied by *purge.Purger.
type Purger interface {
	RunIfDue(ctx context.Context, now time.Time) (purge.Report, bool, error)
}

// Dispatcher fires the purge check on a cron expression evaluated in the
// channel's time zone. The check itself decides whether today is a purge
// day, so the expression only picks the time of day.
type Dispatcher struct {
	cron   *cron.Cron
	purger Purger
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(expr string, purger Purger, logger *slog.Logger) (*Dispatcher, error) {
	logger = logger.With("component", "dispatcher")
	cl := cronLogger{logger}
	d := &Dispatcher{
		cron: cron.New(
			cron.WithLocation(window.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		purger: purger,
		logger: logger,
		now:    time.Now,
	}
	if _, err := d.cron.AddFunc(expr, d.fire); err != nil {
		return nil, fmt.Errorf("purge schedule %q: %w", expr, err)
	}
	return d, nil
}

// Start runs until ctx is done, then waits for a running purge to finish.
func (d *Dispatcher) Start(ctx context.Context) {
	d.cron.Start()
	d.logger.Info("dispatcher started", "next_run", d.next())

	<-ctx.Done()
	<-d.cron.Stop().Done()
	d.logger.Info("dispatcher shut down")
}

func (d *Dispatcher) fire() {
	d.Check(context.Background(), d.now())
}

// Check runs the purge if now falls on a purge day.
func (d *Dispatcher) Check(ctx context.Context, now time.Time) {
	report, ran, err := d.purger.RunIfDue(ctx, now)
	switch {
	case err != nil:
		d.logger.ErrorContext(ctx, "purge", "error", err)
	case ran:
		d.logger.InfoContext(ctx, "purge completed", "kicked", report.Kicked, "failed", report.Failed)
	}
}

func (d *Dispatcher) next() time.Time {
	entries := d.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
