// Package invite issues single-use, time-bounded channel invites and
// supervises each one until the user joins, the invite expires, or it is
// revoked.
package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/ErlanBelekov/channel-gate/internal/events"
	ctxlog "github.com/ErlanBelekov/channel-gate/internal/log"
	"github.com/ErlanBelekov/channel-gate/internal/metrics"
	"github.com/ErlanBelekov/channel-gate/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

type MembershipProber interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

type LinkManager interface {
	CreateInvite(ctx context.Context, userID int64) (string, error)
	// RevokeInvite must treat an already revoked link as success.
	RevokeInvite(ctx context.Context, link string) error
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// MessageRenderer supplies the texts sent on a terminal transition.
type MessageRenderer interface {
	JoinedText(flow domain.InviteFlow) string
	ExpiredText(flow domain.InviteFlow) string
}

// Deps are the collaborators a Coordinator calls out to.
type Deps struct {
	Prober   MembershipProber
	Links    LinkManager
	Notifier Notifier
	Messages MessageRenderer
	Store    repository.SessionRepository
	Events   events.Publisher
}

type Config struct {
	PollInterval time.Duration
	Policy       Policy
	// MaxCalls bounds outstanding collaborator calls across all sessions.
	MaxCalls    int64
	CallTimeout time.Duration
	// SettleTimeout bounds the side effects of one terminal transition.
	SettleTimeout time.Duration
	Now           func() time.Time
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.Policy == "" {
		c.Policy = PolicyReplace
	}
	if c.MaxCalls <= 0 {
		c.MaxCalls = 16
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type IssueRequest struct {
	UserID int64
	TTL    time.Duration
	Flow   domain.InviteFlow
}

type Coordinator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	sem *semaphore.Weighted
	reg *registry

	// base scopes every supervisor; Shutdown cancels it.
	base     context.Context
	stopAll  context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
}

func NewCoordinator(deps Deps, cfg Config, logger *slog.Logger) *Coordinator {
	cfg.setDefaults()
	base, stop := context.WithCancel(context.Background())
	return &Coordinator{
		deps:    deps,
		cfg:     cfg,
		logger:  logger.With("component", "invite"),
		sem:     semaphore.NewWeighted(cfg.MaxCalls),
		reg:     newRegistry(),
		base:    base,
		stopAll: stop,
	}
}

// Issue mints a single-use invite for req.UserID and starts supervising it.
// Membership is checked first; a current member gets domain.ErrAlreadyMember
// and no link is minted.
func (c *Coordinator) Issue(ctx context.Context, req IssueRequest) (domain.InviteSession, error) {
	if req.UserID == 0 || req.TTL <= 0 {
		return domain.InviteSession{}, fmt.Errorf("%w: user id and positive ttl required", domain.ErrInvalidRequest)
	}
	if req.Flow == "" {
		req.Flow = domain.FlowInteractive
	}
	ctx = ctxlog.WithUserID(ctx, req.UserID)

	member, err := c.isMember(ctx, req.UserID)
	if err != nil {
		metrics.InviteIssueRejectedTotal.WithLabelValues("probe_failed").Inc()
		return domain.InviteSession{}, fmt.Errorf("%w: membership probe: %v", domain.ErrCollaboratorUnavailable, err)
	}
	if member {
		metrics.InviteIssueRejectedTotal.WithLabelValues("already_member").Inc()
		return domain.InviteSession{}, domain.ErrAlreadyMember
	}

	release, ok := c.reg.reserve(req.UserID, c.cfg.Policy != PolicyAllow, c.cfg.Policy == PolicyReject)
	if !ok {
		metrics.InviteIssueRejectedTotal.WithLabelValues("session_active").Inc()
		return domain.InviteSession{}, domain.ErrSessionActive
	}
	defer release()

	// Sessions being replaced stay valid until the new one is stored, so a
	// failed re-issue leaves the user with the invite they already had.
	var previous []*entry
	if c.cfg.Policy == PolicyReplace {
		previous = c.reg.activeFor(req.UserID)
	}

	var link string
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		link, err = c.deps.Links.CreateInvite(ctx, req.UserID)
		return err
	})
	if err != nil {
		metrics.InviteIssueRejectedTotal.WithLabelValues("mint_failed").Inc()
		return domain.InviteSession{}, fmt.Errorf("%w: create invite: %v", domain.ErrCollaboratorUnavailable, err)
	}

	now := c.cfg.Now()
	s := domain.InviteSession{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		LinkToken: link,
		Flow:      req.Flow,
		State:     domain.InviteActive,
		CreatedAt: now,
		ExpiresAt: now.Add(req.TTL),
	}

	if err := c.deps.Store.Create(ctx, &s); err != nil {
		// The link is unusable without a session to supervise it.
		if rerr := c.revokeLink(context.WithoutCancel(ctx), link); rerr != nil {
			c.logger.WarnContext(ctx, "revoke orphaned link", "error", rerr)
		}
		return domain.InviteSession{}, fmt.Errorf("persist session: %w", err)
	}

	for _, e := range previous {
		if err := c.revokeEntry(ctx, e); err != nil {
			c.logger.WarnContext(ctx, "replace previous invite", "previous_session_id", e.snapshot().ID, "error", err)
		}
	}

	c.supervise(s)

	metrics.InvitesIssuedTotal.WithLabelValues(string(s.Flow)).Inc()
	c.publish(ctx, s, now)
	c.logger.InfoContext(ctxlog.WithSessionID(ctx, s.ID), "invite issued",
		"flow", s.Flow,
		"expires_at", s.ExpiresAt,
	)
	return s, nil
}

// Revoke invalidates the session and its link. Revoking a session that has
// already reached a terminal state is a no-op. The session is Revoked even
// when the platform call fails; that failure is returned wrapped in
// domain.ErrRevokeFailed.
func (c *Coordinator) Revoke(ctx context.Context, id string) error {
	ctx = ctxlog.WithSessionID(ctx, id)

	if e := c.reg.get(id); e != nil {
		return c.revokeEntry(ctx, e)
	}

	// Not supervised here: a session left Active in the store by a previous
	// process that has not been recovered yet.
	s, err := c.deps.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.State.Terminal() {
		return nil
	}
	now := c.cfg.Now()
	s.State = domain.InviteRevoked
	s.EndedAt = &now
	recorded, err := c.settle(ctx, *s)
	if !recorded {
		// Tombstone so a retry does not revoke the link again.
		tctx, cancel := context.WithCancel(c.base)
		cancel()
		c.reg.add(&entry{session: *s, ctx: tctx, cancel: cancel})
	}
	return err
}

func (c *Coordinator) revokeEntry(ctx context.Context, e *entry) error {
	s, ok := c.claim(e, domain.InviteRevoked, false)
	if !ok {
		return nil
	}
	recorded, err := c.settle(ctx, s)
	c.release(s.ID, recorded)
	return err
}

// release drops a settled entry from the registry. An entry whose terminal
// state never reached the store is kept as a tombstone: the store still
// reports it Active, and without the tombstone Revoke and Recover would act
// on it a second time.
func (c *Coordinator) release(id string, recorded bool) {
	if recorded {
		c.reg.remove(id)
	}
}

// Get returns the session, preferring the supervised copy over the store.
func (c *Coordinator) Get(ctx context.Context, id string) (domain.InviteSession, error) {
	if e := c.reg.get(id); e != nil {
		return e.snapshot(), nil
	}
	s, err := c.deps.Store.GetByID(ctx, id)
	if err != nil {
		return domain.InviteSession{}, err
	}
	return *s, nil
}

// ActiveFor lists the user's sessions that are still being supervised.
func (c *Coordinator) ActiveFor(userID int64) []domain.InviteSession {
	entries := c.reg.activeFor(userID)
	out := make([]domain.InviteSession, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out
}

func (c *Coordinator) ActiveCount() int {
	return c.reg.activeCount()
}

// Recover resumes supervision of sessions the store still holds as Active,
// typically after a restart. Sessions already past their expiry expire
// immediately.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	sessions, err := c.deps.Store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	n := 0
	for _, s := range sessions {
		if c.reg.get(s.ID) != nil {
			continue
		}
		c.supervise(*s)
		n++
	}
	if n > 0 {
		c.logger.InfoContext(ctx, "recovered invite sessions", "count", n)
	}
	return n, nil
}

// Shutdown stops all supervision without transitioning any session, so
// the store still holds them as Active for Recover. It waits for the
// supervisors to exit or ctx to end.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdown.Do(c.stopAll)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("invite coordinator shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for supervisors: %w", ctx.Err())
	}
}

// claim moves e into state if it is still Active and cancels its
// supervision. Only one caller per session ever gets ok == true. A
// supervisor (fromSupervisor) loses the claim once its scope is canceled,
// which keeps Shutdown from producing transitions.
func (c *Coordinator) claim(e *entry, state domain.InviteState, fromSupervisor bool) (domain.InviteSession, bool) {
	e.mu.Lock()
	if e.session.State.Terminal() || (fromSupervisor && e.ctx.Err() != nil) {
		e.mu.Unlock()
		return domain.InviteSession{}, false
	}
	now := c.cfg.Now()
	e.session.State = state
	e.session.EndedAt = &now
	s := e.session
	e.mu.Unlock()

	e.cancel()
	metrics.InvitesActive.Dec()
	return s, true
}

// settle runs the side effects of a terminal transition: revoke the link,
// record the state, tell the user, publish the event. It runs detached from
// the caller's cancellation so a transition is never half applied. Only the
// revoke failure is returned; the rest are logged and counted. recorded
// reports whether the store accepted the terminal state.
func (c *Coordinator) settle(ctx context.Context, s domain.InviteSession) (recorded bool, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SettleTimeout)
	defer cancel()

	var revokeErr error
	if err := c.revokeLink(ctx, s.LinkToken); err != nil {
		metrics.SideEffectFailuresTotal.WithLabelValues("revoke").Inc()
		c.logger.ErrorContext(ctx, "revoke invite link", "state", s.State, "error", err)
		revokeErr = fmt.Errorf("%w: %v", domain.ErrRevokeFailed, err)
	}

	recorded = true
	if err := c.deps.Store.Finish(ctx, s.ID, s.State, *s.EndedAt); err != nil {
		recorded = false
		metrics.SideEffectFailuresTotal.WithLabelValues("store").Inc()
		c.logger.ErrorContext(ctx, "record terminal state", "state", s.State, "error", err)
	}

	if text := c.textFor(s); text != "" {
		err := c.call(ctx, func(ctx context.Context) error {
			return c.deps.Notifier.Notify(ctx, s.UserID, text)
		})
		if err != nil {
			metrics.SideEffectFailuresTotal.WithLabelValues("notify").Inc()
			c.logger.WarnContext(ctx, "notify user", "state", s.State, "error", err)
		}
	}

	c.publish(ctx, s, *s.EndedAt)

	metrics.InviteTransitionsTotal.WithLabelValues(string(s.State)).Inc()
	metrics.InviteLifetime.WithLabelValues(string(s.State)).Observe(s.EndedAt.Sub(s.CreatedAt).Seconds())
	c.logger.InfoContext(ctx, "invite finished", "state", s.State, "flow", s.Flow)
	return recorded, revokeErr
}

// textFor returns "" for explicit revocations, which are silent.
func (c *Coordinator) textFor(s domain.InviteSession) string {
	if c.deps.Messages == nil {
		return ""
	}
	switch s.State {
	case domain.InviteJoined:
		return c.deps.Messages.JoinedText(s.Flow)
	case domain.InviteExpired:
		return c.deps.Messages.ExpiredText(s.Flow)
	default:
		return ""
	}
}

func (c *Coordinator) publish(ctx context.Context, s domain.InviteSession, at time.Time) {
	if c.deps.Events == nil {
		return
	}
	err := c.deps.Events.Publish(ctx, domain.InviteEvent{
		SessionID:  s.ID,
		UserID:     s.UserID,
		Flow:       s.Flow,
		State:      s.State,
		OccurredAt: at,
	})
	if err != nil {
		metrics.SideEffectFailuresTotal.WithLabelValues("event").Inc()
		c.logger.WarnContext(ctx, "publish invite event", "state", s.State, "error", err)
	}
}

func (c *Coordinator) isMember(ctx context.Context, userID int64) (bool, error) {
	var member bool
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		member, err = c.deps.Prober.IsMember(ctx, userID)
		return err
	})
	return member, err
}

func (c *Coordinator) revokeLink(ctx context.Context, link string) error {
	return c.call(ctx, func(ctx context.Context) error {
		return c.deps.Links.RevokeInvite(ctx, link)
	})
}

// call runs fn under the collaborator semaphore with a per-call timeout.
func (c *Coordinator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
