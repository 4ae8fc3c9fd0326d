package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/messages"
	"github.com/ErlanBelekov/channel-gate/internal/window"
)

type Messenger interface {
	Notify(ctx context.Context, userID int64, text string) error
	SendWithButton(ctx context.Context, userID int64, text, buttonText, url string) error
}

type WindowConfig struct {
	ForceWindowOpen bool
	PaymentURL      string
	Now             func() time.Time
}

// WindowUsecase answers "can I enroll now?" for the API and the welcome flow.
type WindowUsecase struct {
	messenger Messenger
	texts     Texts
	cfg       WindowConfig
	logger    *slog.Logger
}

func NewWindowUsecase(messenger Messenger, texts Texts, cfg WindowConfig, logger *slog.Logger) *WindowUsecase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WindowUsecase{
		messenger: messenger,
		texts:     texts,
		cfg:       cfg,
		logger:    logger.With("component", "welcome"),
	}
}

// Status is the window status at t, with the force-open override applied.
func (u *WindowUsecase) Status(t time.Time) window.Status {
	st := window.StatusOf(t)
	if u.cfg.ForceWindowOpen && !st.IsOpen {
		st.IsOpen = true
		st.DaysUntilOpen = 0
	}
	return st
}

// Welcome greets the user with the open or closed window message. A
// closed window also gets a reminder with the days left.
func (u *WindowUsecase) Welcome(ctx context.Context, userID int64, displayName string) (window.Status, error) {
	st := u.Status(u.cfg.Now())
	vars := map[string]any{
		"Name":   displayName,
		"UserID": userID,
	}

	if st.IsOpen {
		text, err := u.texts.Render(messages.WelcomeOpen, vars)
		if err != nil {
			return st, err
		}
		if u.cfg.PaymentURL == "" {
			return st, u.messenger.Notify(ctx, userID, text)
		}
		return st, u.messenger.SendWithButton(ctx, userID, text, u.texts.Text(messages.PaymentButton), u.paymentLink(userID))
	}

	vars["OpensOn"] = st.OpensOn.Label()
	vars["ClosesOn"] = st.ClosesOn.Label()
	vars["DaysUntilOpen"] = st.DaysUntilOpen
	text, err := u.texts.Render(messages.WelcomeClosed, vars)
	if err != nil {
		return st, err
	}
	if err := u.messenger.Notify(ctx, userID, text); err != nil {
		return st, fmt.Errorf("send welcome: %w", err)
	}

	reminder, err := u.texts.Render(messages.Reminder, vars)
	if err != nil {
		return st, err
	}
	if err := u.messenger.Notify(ctx, userID, reminder); err != nil {
		u.logger.WarnContext(ctx, "send reminder", "user_id", userID, "error", err)
	}
	return st, nil
}

// paymentLink points the payment page at the user: <base>/?tgid=<id>#payment.
func (u *WindowUsecase) paymentLink(userID int64) string {
	q := url.Values{"tgid": {strconv.FormatInt(userID, 10)}}
	return strings.TrimRight(u.cfg.PaymentURL, "/") + "/?" + q.Encode() + "#payment"
}
