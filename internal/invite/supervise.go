package invite

import (
	"context"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	ctxlog "github.com/ErlanBelekov/channel-gate/internal/log"
	"github.com/ErlanBelekov/channel-gate/internal/metrics"
)

// supervise registers s and starts its poll loop and expiry timer under one
// scope. Whichever of them claims a transition cancels the other.
func (c *Coordinator) supervise(s domain.InviteSession) {
	ctx := ctxlog.WithUserID(ctxlog.WithSessionID(c.base, s.ID), s.UserID)
	ctx, cancel := context.WithCancel(ctx)

	e := &entry{session: s, ctx: ctx, cancel: cancel}
	c.reg.add(e)
	metrics.InvitesActive.Inc()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx, e)
	}()
	go func() {
		defer c.wg.Done()
		c.expireAt(ctx, e)
	}()
}

func (c *Coordinator) pollLoop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	userID := e.session.UserID
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			member, err := c.isMember(ctx, userID)
			if err != nil {
				if isCanceled(ctx, err) {
					return
				}
				metrics.MembershipPollsTotal.WithLabelValues("error").Inc()
				c.logger.WarnContext(ctx, "membership poll failed", "error", err)
				continue
			}
			if !member {
				metrics.MembershipPollsTotal.WithLabelValues("absent").Inc()
				continue
			}
			metrics.MembershipPollsTotal.WithLabelValues("member").Inc()
			c.transition(ctx, e, domain.InviteJoined)
			return
		}
	}
}

func (c *Coordinator) expireAt(ctx context.Context, e *entry) {
	timer := time.NewTimer(max(0, e.session.ExpiresAt.Sub(c.cfg.Now())))
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		c.transition(ctx, e, domain.InviteExpired)
	}
}

func (c *Coordinator) transition(ctx context.Context, e *entry, state domain.InviteState) {
	s, ok := c.claim(e, state, true)
	if !ok {
		return
	}
	// The revoke error is already logged and counted by settle.
	recorded, _ := c.settle(ctx, s)
	c.release(s.ID, recorded)
}
