package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/service"
)

type StatsHandler struct {
	ledger   *service.LedgerService
	sessions SessionControl
	clients  func() int
}

// NewStatsHandler reports ledger totals alongside live session and event
// stream counts. clients may be nil when no event broker is running.
func NewStatsHandler(ledger *service.LedgerService, sessions SessionControl, clients func() int) *StatsHandler {
	return &StatsHandler{ledger: ledger, sessions: sessions, clients: clients}
}

// GET /v1/stats
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	totals, err := h.ledger.Totals(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get ledger totals")
		writeError(w, err)
		return
	}

	eventClients := 0
	if h.clients != nil {
		eventClients = h.clients()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ledger":       totals,
		"liveSessions": h.sessions.Live(),
		"eventClients": eventClients,
	})
}
