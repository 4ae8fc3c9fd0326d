// Package purge clears the channel the day before an enrollment window
// opens, so every member has to enroll again.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/ErlanBelekov/channel-gate/internal/email"
	"github.com/ErlanBelekov/channel-gate/internal/messages"
	"github.com/ErlanBelekov/channel-gate/internal/metrics"
	"github.com/ErlanBelekov/channel-gate/internal/repository"
	"github.com/ErlanBelekov/channel-gate/internal/window"
	"golang.org/x/sync/errgroup"
)

// Moderator is satisfied by *telegram.Channel.
type Moderator interface {
	MemberStatus(ctx context.Context, userID int64) (domain.MemberStatus, error)
	Kick(ctx context.Context, userID int64, until time.Time) error
	LiftBan(ctx context.Context, userID int64) error
}

type Renderer interface {
	Render(key string, data map[string]any) (string, error)
}

type Config struct {
	// KickDuration is how long a removed member stays banned. The Bot API
	// treats anything under 30s as permanent.
	KickDuration time.Duration
	// LiftDelay is how long after the last kick the bans are lifted.
	LiftDelay   time.Duration
	Concurrency int
	OpsEmail    string
}

type Report struct {
	Date       window.Date
	OpensOn    window.Date
	Candidates int
	Kicked     int
	Privileged int
	Absent     int
	Failed     int
	LiftFailed int
	Duration   time.Duration
}

type Purger struct {
	members repository.MemberDirectory
	mod     Moderator
	mailer  email.Sender
	texts   Renderer
	cfg     Config
	logger  *slog.Logger
}

func NewPurger(members repository.MemberDirectory, mod Moderator, mailer email.Sender, texts Renderer, cfg Config, logger *slog.Logger) *Purger {
	if cfg.KickDuration <= 0 {
		cfg.KickDuration = 31 * time.Second
	}
	if cfg.LiftDelay <= 0 {
		cfg.LiftDelay = cfg.KickDuration + time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Purger{
		members: members,
		mod:     mod,
		mailer:  mailer,
		texts:   texts,
		cfg:     cfg,
		logger:  logger.With("component", "purge"),
	}
}

// RunIfDue purges only on the day before a window opens. ran reports
// whether a purge happened.
func (p *Purger) RunIfDue(ctx context.Context, now time.Time) (report Report, ran bool, err error) {
	today := window.DateOf(now)
	if !window.IsPurgeDay(today) {
		p.logger.DebugContext(ctx, "not a purge day", "date", today, "next_open", window.NextOpenDate(today))
		return Report{}, false, nil
	}
	report, err = p.Run(ctx, now)
	return report, true, err
}

// Run removes every non-privileged member admitted through an invite.
// Members are kicked with a short ban that is then lifted, so they can
// rejoin with a new invite.
func (p *Purger) Run(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	today := window.DateOf(now)
	report := Report{Date: today, OpensOn: window.NextOpenDate(today)}

	ids, err := p.members.ListJoinedUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list members: %w", err)
	}
	report.Candidates = len(ids)
	p.logger.InfoContext(ctx, "purge started", "candidates", len(ids), "opens_on", report.OpensOn)

	kicked, lastKick := p.kickAll(ctx, ids, &report)

	if len(kicked) > 0 {
		// Bans carry their own expiry, so a run cut short here still
		// leaves nobody banned for long.
		if err := sleepUntil(ctx, lastKick.Add(p.cfg.LiftDelay)); err != nil {
			return report, fmt.Errorf("wait to lift bans: %w", err)
		}
		p.liftAll(ctx, kicked, &report)
	}

	report.Duration = time.Since(start)
	metrics.PurgeLastRun.SetToCurrentTime()
	p.logger.InfoContext(ctx, "purge finished",
		"candidates", report.Candidates,
		"kicked", report.Kicked,
		"privileged", report.Privileged,
		"absent", report.Absent,
		"failed", report.Failed,
		"lift_failed", report.LiftFailed,
		"duration", report.Duration,
	)
	p.sendReport(ctx, report)
	return report, nil
}

func (p *Purger) kickAll(ctx context.Context, ids []int64, report *Report) ([]int64, time.Time) {
	var (
		mu       sync.Mutex
		kicked   []int64
		lastKick time.Time
	)
	count := func(field *int, action string) {
		mu.Lock()
		*field++
		mu.Unlock()
		metrics.PurgeMembersTotal.WithLabelValues(action).Inc()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			status, err := p.mod.MemberStatus(gctx, id)
			if err != nil {
				p.logger.WarnContext(gctx, "probe member", "user_id", id, "error", err)
				count(&report.Failed, "failed")
				return nil
			}
			switch {
			case status.Privileged():
				count(&report.Privileged, "privileged")
				return nil
			case !status.HasAccess():
				count(&report.Absent, "absent")
				return nil
			}

			at := time.Now()
			if err := p.mod.Kick(gctx, id, at.Add(p.cfg.KickDuration)); err != nil {
				p.logger.WarnContext(gctx, "kick member", "user_id", id, "error", err)
				count(&report.Failed, "failed")
				return nil
			}
			count(&report.Kicked, "kicked")
			mu.Lock()
			kicked = append(kicked, id)
			if at.After(lastKick) {
				lastKick = at
			}
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; per-member failures are counted.
	_ = g.Wait()
	return kicked, lastKick
}

func (p *Purger) liftAll(ctx context.Context, ids []int64, report *Report) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := p.mod.LiftBan(gctx, id); err != nil {
				p.logger.WarnContext(gctx, "lift ban", "user_id", id, "error", err)
				mu.Lock()
				report.LiftFailed++
				mu.Unlock()
				metrics.PurgeMembersTotal.WithLabelValues("lift_failed").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Purger) sendReport(ctx context.Context, r Report) {
	if p.cfg.OpsEmail == "" || p.mailer == nil || p.texts == nil {
		return
	}
	vars := map[string]any{
		"Date":       r.Date.String(),
		"OpensOn":    r.OpensOn.Label(),
		"Candidates": r.Candidates,
		"Kicked":     r.Kicked,
		"Privileged": r.Privileged,
		"Absent":     r.Absent,
		"Failed":     r.Failed + r.LiftFailed,
	}
	subject, err := p.texts.Render(messages.PurgeReportSubject, vars)
	if err != nil {
		p.logger.ErrorContext(ctx, "render purge report subject", "error", err)
		return
	}
	body, err := p.texts.Render(messages.PurgeReport, vars)
	if err != nil {
		p.logger.ErrorContext(ctx, "render purge report", "error", err)
		return
	}
	if err := p.mailer.Send(ctx, p.cfg.OpsEmail, subject, body); err != nil {
		p.logger.WarnContext(ctx, "email purge report", "error", err)
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
