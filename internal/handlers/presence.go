package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/heihuo000/message-board-system/internal/metrics"
)

// RegisterRequest announces a client to the presence tracker.
type RegisterRequest struct {
	ClientID     string `json:"client_id"`
	Capabilities string `json:"capabilities,omitempty"`
}

// Register handles POST /presence/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ClientID == "" {
		h.Error(w, http.StatusBadRequest, "client_id is required")
		return
	}

	if err := h.presence.Register(r.Context(), req.ClientID, req.Capabilities); err != nil {
		h.logger.Error().Err(err).Str("client_id", req.ClientID).Msg("presence register failed")
		h.Error(w, http.StatusServiceUnavailable, "presence unavailable, retry later")
		return
	}

	h.JSON(w, http.StatusCreated, map[string]string{"client_id": req.ClientID, "status": "listening"})
}

// HeartbeatRequest identifies the client refreshing its liveness.
type HeartbeatRequest struct {
	ClientID string `json:"client_id"`
}

// Heartbeat handles POST /presence/heartbeat.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ClientID == "" {
		h.Error(w, http.StatusBadRequest, "client_id is required")
		return
	}

	if err := h.presence.Heartbeat(r.Context(), req.ClientID); err != nil {
		h.logger.Error().Err(err).Str("client_id", req.ClientID).Msg("presence heartbeat failed")
		h.Error(w, http.StatusServiceUnavailable, "presence unavailable, retry later")
		return
	}

	metrics.PresenceHeartbeats.Inc()
	h.JSON(w, http.StatusOK, map[string]string{"client_id": req.ClientID})
}

// GetPresence handles GET /presence.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	records, err := h.presence.Snapshot(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("presence snapshot failed")
		h.Error(w, http.StatusServiceUnavailable, "presence unavailable, retry later")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"clients": records,
		"count":   len(records),
	})
}
