package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openclaw/walletlink/internal/metrics"
	"github.com/openclaw/walletlink/internal/model"
	"github.com/openclaw/walletlink/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockPruner struct {
	mock.Mock
}

func (m *mockPruner) Prune(retention time.Duration) int {
	args := m.Called(retention)
	return args.Int(0)
}

func waitCall[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	var zero T
	return zero
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct retention", func(t *testing.T) {
		job := NewCleanupJob(&mockPruner{}, 10*time.Minute, time.Hour)
		defer job.ticker.Stop()

		assert.NotNil(t, job)
		assert.Equal(t, 10*time.Minute, job.retention)
	})

	t.Run("prunes on start and on every tick", func(t *testing.T) {
		calls := make(chan struct{}, 4)
		pruner := &mockPruner{}
		pruner.On("Prune", 10*time.Minute).Return(3).Run(func(mock.Arguments) {
			calls <- struct{}{}
		})

		tk := ticker.NewForce(time.Hour)
		job := newCleanupJob(pruner, 10*time.Minute, tk)

		job.Start()
		waitCall(t, calls)

		tk.Force <- time.Now()
		waitCall(t, calls)

		job.Stop()
		pruner.AssertNumberOfCalls(t, "Prune", 2)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		calls := make(chan struct{}, 4)
		pruner := &mockPruner{}
		pruner.On("Prune", time.Minute).Return(0).Run(func(mock.Arguments) {
			calls <- struct{}{}
		})
		job := newCleanupJob(pruner, time.Minute, ticker.NewForce(time.Hour))

		job.Start()
		waitCall(t, calls)
		job.Stop()
		job.Stop()
	})
}

type mockTotals struct {
	calls  chan struct{}
	totals *service.LedgerTotals
	err    error
}

func (m *mockTotals) Totals(ctx context.Context) (*service.LedgerTotals, error) {
	defer func() { m.calls <- struct{}{} }()
	return m.totals, m.err
}

func TestStatsJob(t *testing.T) {
	t.Run("publishes ledger totals", func(t *testing.T) {
		source := &mockTotals{
			calls: make(chan struct{}, 4),
			totals: &service.LedgerTotals{
				LedgerTotals: model.LedgerTotals{Principals: 5, WithWallet: 2, Subscribed: 3, Balance: 650},
				Referrals:    4,
			},
		}
		m := metrics.New()
		job := newStatsJob(source, m, ticker.NewForce(time.Hour))

		job.Start()
		waitCall(t, source.calls)
		job.Stop()

		expected := `
# HELP walletlink_ledger_principals Registered principals.
# TYPE walletlink_ledger_principals gauge
walletlink_ledger_principals 5
`
		require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "walletlink_ledger_principals"))

		expected = `
# HELP walletlink_ledger_balance_sum Sum of all principal balances.
# TYPE walletlink_ledger_balance_sum gauge
walletlink_ledger_balance_sum 650
`
		require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "walletlink_ledger_balance_sum"))
	})

	t.Run("keeps running after a failed refresh", func(t *testing.T) {
		source := &mockTotals{calls: make(chan struct{}, 4), err: errors.New("database is locked")}
		tk := ticker.NewForce(time.Hour)
		job := newStatsJob(source, metrics.New(), tk)

		job.Start()
		waitCall(t, source.calls)

		tk.Force <- time.Now()
		waitCall(t, source.calls)

		job.Stop()
	})
}
