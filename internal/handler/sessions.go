package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/walletlink/internal/audit"
	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/model"
)

// SessionControl is the part of the session manager the ops API uses.
type SessionControl interface {
	Snapshot(principalID int64) (model.SessionSnapshot, bool)
	Cancel(principalID int64) error
	Live() int
}

type SessionHandler struct {
	sessions SessionControl
}

func NewSessionHandler(sessions SessionControl) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Cancel)

	return r
}

// GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := principalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, ok := h.sessions.Snapshot(id)
	if !ok {
		writeError(w, apperrors.SessionNotFound())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/sessions/{id}
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := principalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.sessions.Cancel(id); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:        audit.EventSessionCancel,
		PrincipalID: id,
	})

	snap, _ := h.sessions.Snapshot(id)
	writeJSON(w, http.StatusOK, snap)
}
