package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/walletlink/internal/model"
)

func TestSessionCounters(t *testing.T) {
	m := New()

	m.SessionStarted()
	m.SessionStarted()
	m.SessionFinished(model.Connected("UQabc"))

	cancelled := model.Failed("superseded")
	cancelled.Cancelled = true
	m.SessionFinished(cancelled)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.sessionsStarted))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.liveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionOutcomes.WithLabelValues("connected", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionOutcomes.WithLabelValues("failed", "true")))
}

func TestLedgerTotals(t *testing.T) {
	m := New()
	m.SetLedgerTotals(model.LedgerTotals{Principals: 5, WithWallet: 2, Subscribed: 3, Balance: 450}, 2)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.principals))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.principalsWallet))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.principalsSubbed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.referrals))
	assert.Equal(t, float64(450), testutil.ToFloat64(m.outstandingCredit))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionFinished(model.TimedOut())
		m.ProviderError()
		m.BotUpdate("message")
		m.SetLedgerTotals(model.LedgerTotals{}, 0)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.BotUpdate("callback")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `walletlink_bot_updates_total{type="callback"} 1`)
}
