package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/heihuo000/message-board-system/internal/metrics"
	"github.com/heihuo000/message-board-system/internal/models"
)

// maxWaitSeconds caps a single wait call. The HTTP server's write timeout
// must stay comfortably above this, since the response is held open for
// the whole wait.
const maxWaitSeconds = 600

// WaitRequest represents the blocking wait payload. Watermark is the
// created_at of the last message the caller consumed; only strictly newer
// messages resolve the wait.
type WaitRequest struct {
	ClientID       string `json:"client_id"`
	Watermark      int64  `json:"watermark"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// WaitResponse reports the wait outcome. Found=false means the timeout
// elapsed with nothing new.
type WaitResponse struct {
	Found       bool            `json:"found"`
	Message     *models.Message `json:"message,omitempty"`
	WaitSeconds float64         `json:"wait_seconds"`
}

// Wait handles POST /wait.
func (h *Handler) Wait(w http.ResponseWriter, r *http.Request) {
	var req WaitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ClientID == "" {
		h.Error(w, http.StatusBadRequest, "client_id is required")
		return
	}
	if req.TimeoutSeconds < 0 || req.TimeoutSeconds > maxWaitSeconds {
		h.Error(w, http.StatusBadRequest, "timeout_seconds out of range")
		return
	}

	// A waiting client is by definition listening.
	if err := h.presence.SetListening(r.Context(), req.ClientID); err != nil {
		h.logger.Warn().Err(err).Str("client_id", req.ClientID).Msg("presence update failed")
	}

	metrics.WaitsStarted.Inc()
	res, err := h.waiter.WaitForNext(r.Context(), req.ClientID, req.Watermark, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing to write.
			return
		}
		h.storeError(w, err)
		return
	}

	metrics.WaitDuration.Observe(res.WaitTime.Seconds())
	if res.Found {
		metrics.WaitHits.Inc()
	} else {
		metrics.WaitTimeouts.Inc()
	}

	if err := h.presence.Heartbeat(r.Context(), req.ClientID); err != nil {
		h.logger.Warn().Err(err).Str("client_id", req.ClientID).Msg("presence heartbeat failed")
	}

	h.JSON(w, http.StatusOK, WaitResponse{
		Found:       res.Found,
		Message:     res.Message,
		WaitSeconds: res.WaitTime.Seconds(),
	})
}
