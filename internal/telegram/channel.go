package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Channel binds the client to one channel and exposes the operations the
// invite coordinator, the grant flows and the purge job consume.
type Channel struct {
	client *Client
	// Numeric ids go in chatID, "@name" references in username.
	chatID   int64
	username string
	logger   *slog.Logger
}

func NewChannel(client *Client, chatID string, logger *slog.Logger) *Channel {
	ch := &Channel{
		client: client,
		logger: logger.With("component", "telegram"),
	}
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		ch.chatID = id
	} else {
		ch.username = chatID
	}
	return ch
}

func (ch *Channel) chat() tgbotapi.ChatConfig {
	return tgbotapi.ChatConfig{ChatID: ch.chatID, SuperGroupUsername: ch.username}
}

func (ch *Channel) member(userID int64) tgbotapi.ChatMemberConfig {
	return tgbotapi.ChatMemberConfig{ChatID: ch.chatID, SuperGroupUsername: ch.username, UserID: userID}
}

// MemberStatus reports the user's standing. Users the chat has never seen
// come back as left.
func (ch *Channel) MemberStatus(ctx context.Context, userID int64) (domain.MemberStatus, error) {
	m, err := ch.client.GetChatMember(ctx, tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: ch.chatID, SuperGroupUsername: ch.username, UserID: userID},
	})
	if err != nil {
		if isUserNotFound(err) {
			return domain.MemberLeft, nil
		}
		return "", err
	}
	status := domain.MemberStatus(m.Status)
	if status == domain.MemberRestricted && m.IsMember {
		return domain.MemberMember, nil
	}
	return status, nil
}

func (ch *Channel) IsMember(ctx context.Context, userID int64) (bool, error) {
	status, err := ch.MemberStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	return status.HasAccess(), nil
}

// CreateInvite mints a link usable by exactly one person, named after the
// user it was issued to.
func (ch *Channel) CreateInvite(ctx context.Context, userID int64) (string, error) {
	link, err := ch.client.CreateChatInviteLink(ctx, tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  ch.chat(),
		Name:        fmt.Sprintf("user_%d", userID),
		MemberLimit: 1,
	})
	if err != nil {
		return "", err
	}
	if link.InviteLink == "" {
		return "", errors.New("telegram createChatInviteLink: empty invite link")
	}
	return link.InviteLink, nil
}

// RevokeInvite treats a link the platform already considers dead as revoked.
func (ch *Channel) RevokeInvite(ctx context.Context, link string) error {
	_, err := ch.client.RevokeChatInviteLink(ctx, tgbotapi.RevokeChatInviteLinkConfig{ChatConfig: ch.chat(), InviteLink: link})
	if err != nil && isDeadLink(err) {
		ch.logger.DebugContext(ctx, "invite link already gone", "error", err)
		return nil
	}
	return err
}

func (ch *Channel) Notify(ctx context.Context, userID int64, text string) error {
	return ch.Send(ctx, userID, text, nil)
}

// Send delivers text to the user's private chat, optionally with an inline
// keyboard.
func (ch *Channel) Send(ctx context.Context, userID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(userID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := ch.client.SendMessage(ctx, msg)
	return err
}

// SendWithButton sends text with a single URL button under it.
func (ch *Channel) SendWithButton(ctx context.Context, userID int64, text, buttonText, url string) error {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(buttonText, url)),
	)
	return ch.Send(ctx, userID, text, &markup)
}

// Kick bans the user until the given time.
func (ch *Channel) Kick(ctx context.Context, userID int64, until time.Time) error {
	return ch.client.BanChatMember(ctx, tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: ch.member(userID),
		UntilDate:        until.Unix(),
	})
}

// LiftBan unbans without touching users who are not banned.
func (ch *Channel) LiftBan(ctx context.Context, userID int64) error {
	return ch.client.UnbanChatMember(ctx, tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: ch.member(userID),
		OnlyIfBanned:     true,
	})
}

func (ch *Channel) Ping(ctx context.Context) error {
	return ch.client.Ping(ctx)
}

func isUserNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		return false
	}
	d := strings.ToLower(apiErr.Description)
	return strings.Contains(d, "user not found") || strings.Contains(d, "participant_id_invalid")
}

func isDeadLink(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		return false
	}
	d := strings.ToLower(apiErr.Description)
	return strings.Contains(d, "invite_hash_expired") ||
		strings.Contains(d, "invite link not found") ||
		strings.Contains(d, "already revoked")
}
