package telegram_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/ErlanBelekov/channel-gate/internal/telegram"
)

const token = "123:secret"

type call struct {
	method string
	params url.Values
}

// botAPI is a fake Bot API. handlers map a method name to the JSON it
// replies with. Requests arrive form-encoded, as the client library sends them.
type botAPI struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]func(params url.Values) (int, string)
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + token + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)

	_ = r.ParseForm()
	params := r.PostForm

	b.mu.Lock()
	b.calls = append(b.calls, call{method, params})
	h := b.handlers[method]
	b.mu.Unlock()

	if h == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		return
	}
	status, resp := h(params)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}

func (b *botAPI) lastCall(t *testing.T) call {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.calls) == 0 {
		t.Fatal("no calls made")
	}
	return b.calls[len(b.calls)-1]
}

func newChannel(t *testing.T, handlers map[string]func(url.Values) (int, string)) (*telegram.Channel, *botAPI) {
	t.Helper()
	api := &botAPI{handlers: handlers}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client := telegram.NewClient(srv.URL, token, srv.Client())
	return telegram.NewChannel(client, "-100123", slog.Default()), api
}

func reply(status int, body string) func(url.Values) (int, string) {
	return func(url.Values) (int, string) { return status, body }
}

func TestIsMember(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
		err    bool
	}{
		{"member", 200, `{"ok":true,"result":{"user":{"id":5},"status":"member"}}`, true, false},
		{"creator", 200, `{"ok":true,"result":{"user":{"id":5},"status":"creator"}}`, true, false},
		{"left", 200, `{"ok":true,"result":{"user":{"id":5},"status":"left"}}`, false, false},
		{"kicked", 200, `{"ok":true,"result":{"user":{"id":5},"status":"kicked"}}`, false, false},
		{"restricted inside", 200, `{"ok":true,"result":{"user":{"id":5},"status":"restricted","is_member":true}}`, true, false},
		{"never seen", 400, `{"ok":false,"error_code":400,"description":"Bad Request: user not found"}`, false, false},
		{"rate limited", 429, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`, false, true},
		{"garbage", 502, `<html>bad gateway</html>`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, api := newChannel(t, map[string]func(url.Values) (int, string){
				"getChatMember": reply(tt.status, tt.body),
			})

			got, err := ch.IsMember(context.Background(), 5)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, wantErr %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("IsMember = %v, want %v", got, tt.want)
			}
			c := api.lastCall(t)
			if c.params.Get("chat_id") != "-100123" || c.params.Get("user_id") != "5" {
				t.Errorf("params = %v", c.params)
			}
		})
	}
}

func TestAPIError_RetryAfter(t *testing.T) {
	ch, _ := newChannel(t, map[string]func(url.Values) (int, string){
		"getChatMember": reply(429, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`),
	})
	_, err := ch.IsMember(context.Background(), 1)

	var apiErr *telegram.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 3 || apiErr.Method != "getChatMember" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestCreateInvite_SingleUse(t *testing.T) {
	ch, api := newChannel(t, map[string]func(url.Values) (int, string){
		"createChatInviteLink": reply(200, `{"ok":true,"result":{"invite_link":"https://t.me/+AbCd","member_limit":1,"is_revoked":false}}`),
	})

	link, err := ch.CreateInvite(context.Background(), 77)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if link != "https://t.me/+AbCd" {
		t.Errorf("link = %q", link)
	}
	c := api.lastCall(t)
	if c.params.Get("member_limit") != "1" || c.params.Get("name") != "user_77" {
		t.Errorf("params = %v", c.params)
	}
}

func TestRevokeInvite(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"revoked", 200, `{"ok":true,"result":{"invite_link":"https://t.me/+x","is_revoked":true}}`, false},
		{"already expired", 400, `{"ok":false,"error_code":400,"description":"Bad Request: INVITE_HASH_EXPIRED"}`, false},
		{"forbidden", 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, _ := newChannel(t, map[string]func(url.Values) (int, string){
				"revokeChatInviteLink": reply(tt.status, tt.body),
			})
			err := ch.RevokeInvite(context.Background(), "https://t.me/+x")
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSend_WithKeyboard(t *testing.T) {
	ch, api := newChannel(t, map[string]func(url.Values) (int, string){
		"sendMessage": reply(200, `{"ok":true,"result":{"message_id":10}}`),
	})

	if err := ch.SendWithButton(context.Background(), 9, "hello", "Pay", "https://pay.example/?tgid=9#payment"); err != nil {
		t.Fatalf("SendWithButton: %v", err)
	}
	c := api.lastCall(t)
	if c.params.Get("chat_id") != "9" || c.params.Get("text") != "hello" {
		t.Errorf("params = %v", c.params)
	}
	var markup struct {
		InlineKeyboard [][]struct {
			Text string `json:"text"`
			URL  string `json:"url"`
		} `json:"inline_keyboard"`
	}
	if err := json.Unmarshal([]byte(c.params.Get("reply_markup")), &markup); err != nil {
		t.Fatalf("reply_markup: %v (%v)", err, c.params)
	}
	if len(markup.InlineKeyboard) != 1 || markup.InlineKeyboard[0][0].URL != "https://pay.example/?tgid=9#payment" {
		t.Errorf("reply_markup = %+v", markup)
	}

	if err := ch.Notify(context.Background(), 9, "plain"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if api.lastCall(t).params.Has("reply_markup") {
		t.Error("Notify sent a keyboard")
	}
}

func TestKickAndLift(t *testing.T) {
	ch, api := newChannel(t, map[string]func(url.Values) (int, string){
		"banChatMember":   reply(200, `{"ok":true,"result":true}`),
		"unbanChatMember": reply(200, `{"ok":true,"result":true}`),
	})

	until := time.Unix(1_700_000_031, 0)
	if err := ch.Kick(context.Background(), 3, until); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if got := api.lastCall(t).params.Get("until_date"); got != "1700000031" {
		t.Errorf("until_date = %v", got)
	}

	if err := ch.LiftBan(context.Background(), 3); err != nil {
		t.Fatalf("LiftBan: %v", err)
	}
	if got := api.lastCall(t).params.Get("only_if_banned"); got != "true" {
		t.Errorf("only_if_banned = %v", got)
	}
}

func TestMemberStatus_Privileged(t *testing.T) {
	ch, _ := newChannel(t, map[string]func(url.Values) (int, string){
		"getChatMember": reply(200, `{"ok":true,"result":{"user":{"id":1},"status":"administrator"}}`),
	})
	st, err := ch.MemberStatus(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.MemberAdministrator || !st.Privileged() {
		t.Errorf("status = %s", st)
	}
}

func TestTransportError_HidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := telegram.NewClient(srv.URL, token, nil)
	err := client.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks the bot token: %v", err)
	}
}

func TestChannel_UsernameReference(t *testing.T) {
	api := &botAPI{handlers: map[string]func(url.Values) (int, string){
		"getChatMember": reply(200, `{"ok":true,"result":{"user":{"id":4},"status":"member"}}`),
	}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	ch := telegram.NewChannel(telegram.NewClient(srv.URL, token, srv.Client()), "@gated", slog.Default())

	if _, err := ch.IsMember(context.Background(), 4); err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if got := api.lastCall(t).params.Get("chat_id"); got != "@gated" {
		t.Errorf("chat_id = %q", got)
	}
}

func TestClient_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := telegram.NewClient(srv.URL, token, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Ping(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
