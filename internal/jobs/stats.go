package jobs

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/metrics"
	"github.com/openclaw/walletlink/internal/service"
)

const statsQueryTimeout = 10 * time.Second

type TotalsSource interface {
	Totals(ctx context.Context) (*service.LedgerTotals, error)
}

// StatsJob refreshes the ledger gauges. Counting rows on every scrape would
// put the database on the metrics hot path.
type StatsJob struct {
	*periodic
	source  TotalsSource
	metrics *metrics.Metrics
}

func NewStatsJob(source TotalsSource, m *metrics.Metrics, interval time.Duration) *StatsJob {
	return newStatsJob(source, m, newTicker(interval))
}

func newStatsJob(source TotalsSource, m *metrics.Metrics, t ticker.Ticker) *StatsJob {
	j := &StatsJob{source: source, metrics: m}
	j.periodic = newPeriodic("ledger stats", t, j.refresh)
	return j
}

func (j *StatsJob) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), statsQueryTimeout)
	defer cancel()

	totals, err := j.source.Totals(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh ledger stats")
		return
	}
	j.metrics.SetLedgerTotals(totals.LedgerTotals, totals.Referrals)
}
