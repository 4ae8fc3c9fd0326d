// Package messages holds the user-facing texts. Defaults are embedded; an
// operator can override any of them with a YAML file of the same shape.
package messages

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	AlreadyMember         = "already_member"
	Joined                = "joined"
	ExpiredInteractive    = "expired_interactive"
	ExpiredPayment        = "expired_payment"
	InviteInteractive     = "invite_interactive"
	InvitePaymentCallback = "invite_payment_callback"
	InvitePaymentProof    = "invite_payment_proof"
	InviteFailed          = "invite_failed"
	WindowClosed          = "window_closed"
	ProofInvalid          = "proof_invalid"
	ProofRejected         = "proof_rejected"
	ProofError            = "proof_error"
	PaymentButton         = "payment_button"
	WelcomeOpen           = "welcome_open"
	WelcomeClosed         = "welcome_closed"
	Reminder              = "reminder"
	PurgeReportSubject    = "purge_report_subject"
	PurgeReport           = "purge_report"
)

//go:embed default.yaml
var defaultCatalog []byte

type catalogFile struct {
	Brand    string            `yaml:"brand"`
	Messages map[string]string `yaml:"messages"`
}

type Catalog struct {
	brand string
	tmpl  map[string]*template.Template
}

var funcs = template.FuncMap{
	"hours": hours,
}

// Load returns the embedded catalog with the entries of the YAML file at
// path laid over it. An empty path loads the defaults only.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	return Parse(defaultCatalog, data)
}

// Parse builds a catalog from YAML documents; later documents override
// earlier ones key by key.
func Parse(docs ...[]byte) (*Catalog, error) {
	merged := catalogFile{Messages: map[string]string{}}
	for i, doc := range docs {
		var f catalogFile
		if err := yaml.Unmarshal(doc, &f); err != nil {
			return nil, fmt.Errorf("parse catalog %d: %w", i, err)
		}
		if f.Brand != "" {
			merged.Brand = f.Brand
		}
		for k, v := range f.Messages {
			k = strings.TrimSpace(k)
			if k == "" {
				return nil, fmt.Errorf("catalog %d: message key cannot be blank", i)
			}
			merged.Messages[k] = v
		}
	}

	c := &Catalog{brand: merged.Brand, tmpl: make(map[string]*template.Template, len(merged.Messages))}
	for k, v := range merged.Messages {
		t, err := template.New(k).Funcs(funcs).Option("missingkey=error").Parse(v)
		if err != nil {
			return nil, fmt.Errorf("message %q: %w", k, err)
		}
		c.tmpl[k] = t
	}
	return c, nil
}

// Keys lists the message keys in the catalog, sorted.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.tmpl))
	for k := range c.tmpl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render executes the message key with data. Brand is always available to
// the template.
func (c *Catalog) Render(key string, data map[string]any) (string, error) {
	t, ok := c.tmpl[key]
	if !ok {
		return "", fmt.Errorf("unknown message %q", key)
	}
	vars := map[string]any{"Brand": c.brand}
	for k, v := range data {
		vars[k] = v
	}
	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render %q: %w", key, err)
	}
	return b.String(), nil
}

// Text renders a message that takes no variables. A missing or broken
// entry yields the key itself so the user still gets something readable.
func (c *Catalog) Text(key string) string {
	s, err := c.Render(key, nil)
	if err != nil {
		return key
	}
	return s
}

func (c *Catalog) JoinedText(domain.InviteFlow) string {
	return c.Text(Joined)
}

func (c *Catalog) ExpiredText(flow domain.InviteFlow) string {
	if flow == domain.FlowInteractive {
		return c.Text(ExpiredInteractive)
	}
	return c.Text(ExpiredPayment)
}

// InviteText is the message carrying a freshly minted link.
func (c *Catalog) InviteText(flow domain.InviteFlow, link string, ttl time.Duration) (string, error) {
	key := InviteInteractive
	switch flow {
	case domain.FlowPaymentCallback:
		key = InvitePaymentCallback
	case domain.FlowPaymentProof:
		key = InvitePaymentProof
	}
	return c.Render(key, map[string]any{"Link": link, "TTL": ttl})
}

// hours renders a TTL the way users read it: "1 hour", "24 hours", "90 minutes".
func hours(d time.Duration) string {
	if d%time.Hour != 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	h := int(d / time.Hour)
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}
