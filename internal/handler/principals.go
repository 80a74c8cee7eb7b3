package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/service"
)

type PrincipalHandler struct {
	ledger   *service.LedgerService
	sessions SessionControl
}

func NewPrincipalHandler(ledger *service.LedgerService, sessions SessionControl) *PrincipalHandler {
	return &PrincipalHandler{ledger: ledger, sessions: sessions}
}

func (h *PrincipalHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/referrals", h.ListReferrals)

	return r
}

// GET /v1/principals
func (h *PrincipalHandler) List(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	principals, total, err := h.ledger.ListPrincipals(r.Context(), p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list principals")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  principals,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GET /v1/principals/{id}
func (h *PrincipalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := principalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	principal, err := h.ledger.GetPrincipal(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.ledger.ReferralStats(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("principalId", id).Msg("failed to load referral stats")
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"principal": principal,
		"referrals": stats,
	}
	if snap, ok := h.sessions.Snapshot(id); ok {
		resp["session"] = snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/principals/{id}/referrals
func (h *PrincipalHandler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	id, err := principalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p := ParsePagination(r)

	if _, err := h.ledger.GetPrincipal(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	edges, err := h.ledger.ListReferrals(r.Context(), id, p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Int64("principalId", id).Msg("failed to list referrals")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  edges,
		"total":  len(edges),
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}
