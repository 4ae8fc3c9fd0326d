package email

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
	"golang.org/x/net/html"
)

// Sender delivers operator alerts such as purge reports. body is HTML.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs emails instead of sending them. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "operator email (local dev)", "to", to, "subject", subject, "body", PlainText(body))
	return nil
}

// ResendSender sends emails via the Resend API. Used in staging/production.
// Every message carries a plain-text part next to the HTML, and an
// idempotency key derived from its content so a retried report within
// Resend's 24h window is delivered once.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(client *resend.Client, from string) *ResendSender {
	return &ResendSender{client: client, from: from}
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
		Text:    PlainText(body),
	}
	opts := &resend.SendEmailOptions{IdempotencyKey: idempotencyKey(to, subject, body)}
	if _, err := s.client.Emails.SendWithOptions(ctx, params, opts); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

func idempotencyKey(to, subject, body string) string {
	h := sha256.New()
	for _, part := range []string{to, subject, body} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "report-" + hex.EncodeToString(h.Sum(nil))[:32]
}

// PlainText renders the small HTML subset the report templates use
// (paragraphs, lists, line breaks) as text. List items become "- " lines.
func PlainText(body string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidyLines(b.String())
		case html.TextToken:
			if text := strings.Join(strings.Fields(string(z.Text())), " "); text != "" {
				b.WriteString(text)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "li":
				b.WriteString("\n- ")
			case "br", "p", "div", "ul", "ol":
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "div", "li", "ul", "ol":
				b.WriteString("\n")
			}
		}
	}
}

func tidyLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger.With("component", "email")}
	}
	return NewResendSender(resend.NewClient(apiKey), from)
}
