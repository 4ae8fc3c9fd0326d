// Package telegram wraps the Bot API client with tracing, call metrics and
// the error shapes the gate branches on: membership lookups, single-use
// invite links, messages and bans.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/metrics"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultAPIBase = "https://api.telegram.org"

// APIError is returned when the Bot API answers ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int // seconds, set on 429
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type Client struct {
	api    *tgbotapi.BotAPI
	http   *http.Client
	tracer trace.Tracer
}

// NewClient builds a client for the bot identified by token. A nil
// httpClient gets one with a 15s timeout. Unlike tgbotapi.NewBotAPI it
// does not call getMe, so construction never touches the network.
func NewClient(apiBase, token string, httpClient *http.Client) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	api := &tgbotapi.BotAPI{Token: token, Client: httpClient, Buffer: 100}
	api.SetAPIEndpoint(strings.TrimRight(apiBase, "/") + "/bot%s/%s")
	return &Client{
		api:    api,
		http:   httpClient,
		tracer: otel.Tracer("github.com/ErlanBelekov/channel-gate/internal/telegram"),
	}
}

// boundDoer attaches the caller's context to requests issued by BotAPI,
// whose methods take none.
type boundDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d boundDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req.WithContext(d.ctx))
	if err == nil {
		trace.SpanFromContext(d.ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	return resp, err
}

// call runs fn against a per-call copy of the bot bound to ctx and maps
// library errors onto APIError.
func (c *Client) call(ctx context.Context, method string, fn func(bot *tgbotapi.BotAPI) error) (err error) {
	ctx, span := c.tracer.Start(ctx, "telegram."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("telegram.method", method)),
	)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.TelegramCallDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
		span.End()
	}()

	bot := *c.api
	bot.Client = boundDoer{ctx: ctx, client: c.http}

	err = fn(&bot)
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &APIError{Method: method, Code: tgErr.Code, Description: tgErr.Message, RetryAfter: tgErr.RetryAfter}
	}
	// *url.Error embeds the request URL, which carries the bot token.
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

// request sends cfg and decodes the result into out.
func request(bot *tgbotapi.BotAPI, cfg tgbotapi.Chattable, out any) error {
	resp, err := bot.Request(cfg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (u tgbotapi.User, err error) {
	err = c.call(ctx, "getMe", func(bot *tgbotapi.BotAPI) error {
		u, err = bot.GetMe()
		return err
	})
	return u, err
}

func (c *Client) GetChatMember(ctx context.Context, cfg tgbotapi.GetChatMemberConfig) (m tgbotapi.ChatMember, err error) {
	err = c.call(ctx, "getChatMember", func(bot *tgbotapi.BotAPI) error {
		m, err = bot.GetChatMember(cfg)
		return err
	})
	return m, err
}

func (c *Client) CreateChatInviteLink(ctx context.Context, cfg tgbotapi.CreateChatInviteLinkConfig) (l tgbotapi.ChatInviteLink, err error) {
	err = c.call(ctx, "createChatInviteLink", func(bot *tgbotapi.BotAPI) error {
		return request(bot, cfg, &l)
	})
	return l, err
}

func (c *Client) RevokeChatInviteLink(ctx context.Context, cfg tgbotapi.RevokeChatInviteLinkConfig) (l tgbotapi.ChatInviteLink, err error) {
	err = c.call(ctx, "revokeChatInviteLink", func(bot *tgbotapi.BotAPI) error {
		return request(bot, cfg, &l)
	})
	return l, err
}

func (c *Client) SendMessage(ctx context.Context, msg tgbotapi.MessageConfig) (m tgbotapi.Message, err error) {
	err = c.call(ctx, "sendMessage", func(bot *tgbotapi.BotAPI) error {
		m, err = bot.Send(msg)
		return err
	})
	return m, err
}

// BanChatMember bans until cfg.UntilDate. The Bot API treats bans shorter
// than 30 seconds as permanent.
func (c *Client) BanChatMember(ctx context.Context, cfg tgbotapi.BanChatMemberConfig) error {
	return c.call(ctx, "banChatMember", func(bot *tgbotapi.BotAPI) error {
		_, err := bot.Request(cfg)
		return err
	})
}

func (c *Client) UnbanChatMember(ctx context.Context, cfg tgbotapi.UnbanChatMemberConfig) error {
	return c.call(ctx, "unbanChatMember", func(bot *tgbotapi.BotAPI) error {
		_, err := bot.Request(cfg)
		return err
	})
}

// Ping checks the token against getMe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetMe(ctx)
	return err
}
