package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/heihuo000/message-board-system/internal/presence"
	"github.com/heihuo000/message-board-system/internal/store"
	"github.com/heihuo000/message-board-system/internal/wait"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.MessageStore
	presence presence.Tracker
	waiter   *wait.Waiter
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(s store.MessageStore, p presence.Tracker, w *wait.Waiter, logger zerolog.Logger) *Handler {
	return &Handler{store: s, presence: p, waiter: w, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// storeError maps store failures to HTTP responses: validation problems
// are the caller's fault, everything else is a 503 the caller may retry.
func (h *Handler) storeError(w http.ResponseWriter, err error) {
	if store.IsValidation(err) {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error().Err(err).Msg("store operation failed")
	h.Error(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
}
