package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/sse"
	"github.com/openclaw/walletlink/internal/util"
)

type EventsHandler struct {
	broker   *sse.Broker
	sessions SessionControl
}

func NewEventsHandler(broker *sse.Broker, sessions SessionControl) *EventsHandler {
	return &EventsHandler{
		broker:   broker,
		sessions: sessions,
	}
}

// GET /v1/events?principal=<id>
//
// Without a principal the stream carries every principal's session events.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principalID := sse.AllPrincipals
	if raw := r.URL.Query().Get("principal"); raw != "" {
		id, ok := util.ParsePrincipalID(raw)
		if !ok {
			writeError(w, apperrors.InvalidInput("principal", "must be a positive integer"))
			return
		}
		principalID = id
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(principalID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Int64("principalId", principalID).
		Msg("sse connection established")

	ctx := r.Context()

	if err := h.sendEvent(w, flusher, "connected", map[string]any{"principalId": principalID}); err != nil {
		return
	}

	// A principal stream starts with the current session, if any, so the
	// client does not miss a transition that happened before it connected.
	if principalID != sse.AllPrincipals {
		if snap, ok := h.sessions.Snapshot(principalID); ok {
			if err := h.sendEvent(w, flusher, "snapshot", snap); err != nil {
				return
			}
		}
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Int64("principalId", principalID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Int64("principalId", principalID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Int64("principalId", principalID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
