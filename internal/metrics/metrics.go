// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openclaw/walletlink/internal/model"
)

const namespace = "walletlink"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionOutcomes *prometheus.CounterVec
	liveSessions    prometheus.Gauge
	providerErrors  prometheus.Counter
	botUpdates      *prometheus.CounterVec

	principals        prometheus.Gauge
	principalsWallet  prometheus.Gauge
	principalsSubbed  prometheus.Gauge
	referrals         prometheus.Gauge
	outstandingCredit prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Connection sessions begun.",
		}),
		sessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Terminal session outcomes by kind.",
		}, []string{"kind", "cancelled"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Sessions currently awaiting pairing or polling.",
		}),
		providerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed calls to the connection provider.",
		}),
		botUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_updates_total",
			Help:      "Telegram updates handled by type.",
		}, []string{"type"}),
		principals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_principals",
			Help:      "Registered principals.",
		}),
		principalsWallet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_principals_with_wallet",
			Help:      "Principals with a linked wallet address.",
		}),
		principalsSubbed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_principals_subscribed",
			Help:      "Principals that passed the subscription gate.",
		}),
		referrals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_referrals",
			Help:      "Recorded referral edges.",
		}),
		outstandingCredit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_balance_sum",
			Help:      "Sum of all principal balances.",
		}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.sessionsStarted,
		m.sessionOutcomes,
		m.liveSessions,
		m.providerErrors,
		m.botUpdates,
		m.principals,
		m.principalsWallet,
		m.principalsSubbed,
		m.referrals,
		m.outstandingCredit,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.liveSessions.Inc()
}

func (m *Metrics) SessionFinished(outcome model.Outcome) {
	if m == nil {
		return
	}
	cancelled := "false"
	if outcome.Cancelled {
		cancelled = "true"
	}
	m.sessionOutcomes.WithLabelValues(string(outcome.Kind), cancelled).Inc()
	m.liveSessions.Dec()
}

func (m *Metrics) ProviderError() {
	if m == nil {
		return
	}
	m.providerErrors.Inc()
}

func (m *Metrics) BotUpdate(kind string) {
	if m == nil {
		return
	}
	m.botUpdates.WithLabelValues(kind).Inc()
}

// SetLedgerTotals refreshes the ledger gauges from a totals snapshot.
func (m *Metrics) SetLedgerTotals(totals model.LedgerTotals, referrals int64) {
	if m == nil {
		return
	}
	m.principals.Set(float64(totals.Principals))
	m.principalsWallet.Set(float64(totals.WithWallet))
	m.principalsSubbed.Set(float64(totals.Subscribed))
	m.referrals.Set(float64(referrals))
	m.outstandingCredit.Set(float64(totals.Balance))
}
