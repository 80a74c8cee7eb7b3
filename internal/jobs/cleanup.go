package jobs

import (
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog/log"
)

// Pruner drops finished sessions older than a retention window.
type Pruner interface {
	Prune(retention time.Duration) int
}

// CleanupJob keeps the session table bounded. Terminal sessions stay
// queryable through the ops API for the retention window, then go.
type CleanupJob struct {
	*periodic
	pruner    Pruner
	retention time.Duration
}

func NewCleanupJob(pruner Pruner, retention, interval time.Duration) *CleanupJob {
	return newCleanupJob(pruner, retention, newTicker(interval))
}

func newCleanupJob(pruner Pruner, retention time.Duration, t ticker.Ticker) *CleanupJob {
	j := &CleanupJob{pruner: pruner, retention: retention}
	j.periodic = newPeriodic("session cleanup", t, j.cleanup)
	return j
}

func (j *CleanupJob) cleanup() {
	if count := j.pruner.Prune(j.retention); count > 0 {
		log.Info().Int("count", count).Dur("retention", j.retention).Msg("pruned finished sessions")
	}
}
