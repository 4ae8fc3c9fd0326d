package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/channel-gate/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "channel_gate"

var (
	// Invite lifecycle

	InvitesIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invites_issued_total",
		Help:      "Invite sessions created, by grant flow.",
	}, []string{"flow"})

	InviteIssueRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invite_issue_rejected_total",
		Help:      "Issue requests that did not produce a session, by reason.",
	}, []string{"reason"})

	InviteTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invite_transitions_total",
		Help:      "Terminal transitions of invite sessions, by resulting state.",
	}, []string{"state"})

	InvitesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "invites_active",
		Help:      "Invite sessions currently supervised.",
	})

	InviteLifetime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "invite_lifetime_seconds",
		Help:      "Time from issue to terminal transition.",
		Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
	}, []string{"state"})

	MembershipPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "membership_polls_total",
		Help:      "Membership probes made by session supervisors, by result.",
	}, []string{"result"})

	SideEffectFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "side_effect_failures_total",
		Help:      "Failed side effects of a terminal transition, by kind.",
	}, []string{"kind"})

	// Telegram

	TelegramCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "telegram_call_duration_seconds",
		Help:      "Latency of Bot API calls.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "outcome"})

	// Purge

	PurgeMembersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purge_members_total",
		Help:      "Members handled by the purge job, by action.",
	}, []string{"action"})

	PurgeLastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "purge_last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last completed purge.",
	})

	// Window

	WindowOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_open",
		Help:      "1 while the enrollment window is open.",
	})

	WindowDaysUntilOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_days_until_open",
		Help:      "Whole days until the next window opens, 0 while open.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		InvitesIssuedTotal,
		InviteIssueRejectedTotal,
		InviteTransitionsTotal,
		InvitesActive,
		InviteLifetime,
		MembershipPollsTotal,
		SideEffectFailuresTotal,
		TelegramCallDuration,
		PurgeMembersTotal,
		PurgeLastRun,
		WindowOpen,
		WindowDaysUntilOpen,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// Prober is satisfied by *health.Checker.
type Prober interface {
	Liveness(ctx context.Context) health.HealthResult
	Readiness(ctx context.Context) health.HealthResult
}

func NewServer(addr string, checker Prober) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, res health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if res.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(res)
}
