package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/heihuo000/message-board-system/internal/metrics"
	"github.com/heihuo000/message-board-system/internal/models"
	"github.com/heihuo000/message-board-system/internal/store"
)

// SendMessageRequest represents the message posting payload.
type SendMessageRequest struct {
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// SendMessageResponse acknowledges a stored message.
type SendMessageResponse struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// SendMessage handles POST /messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	priority := models.Priority(req.Priority)
	if priority == "" {
		priority = models.PriorityNormal
	}

	msg, err := h.store.Append(r.Context(), req.Sender, req.Content, priority, req.ReplyTo)
	if err != nil {
		h.storeError(w, err)
		return
	}

	// Posting counts as liveness.
	if err := h.presence.Heartbeat(r.Context(), req.Sender); err != nil {
		h.logger.Warn().Err(err).Str("client_id", req.Sender).Msg("presence heartbeat failed")
	} else {
		_ = h.presence.IncrementMessageCount(r.Context(), req.Sender)
	}

	metrics.MessagesPosted.WithLabelValues(string(priority)).Inc()
	h.JSON(w, http.StatusCreated, SendMessageResponse{ID: msg.ID, CreatedAt: msg.CreatedAt})
}

// ReadMessages handles GET /messages. Query parameters: unread, sender,
// exclude_sender, after (created_at watermark), limit.
func (h *Handler) ReadMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.Filter{
		UnreadOnly:    q.Get("unread") == "true",
		Sender:        q.Get("sender"),
		ExcludeSender: q.Get("exclude_sender"),
	}
	if after := q.Get("after"); after != "" {
		v, err := strconv.ParseInt(after, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		f.After = v
	}
	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 1 {
			h.Error(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		f.Limit = v
	}

	msgs, err := h.store.Query(r.Context(), f)
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// MarkReadRequest selects messages to flag as read. When IDs is empty and
// All is set, every unread message not sent by Sender is flagged.
type MarkReadRequest struct {
	IDs    []string `json:"ids,omitempty"`
	All    bool     `json:"all,omitempty"`
	Sender string   `json:"sender,omitempty"`
}

// MarkRead handles POST /messages/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var (
		count int64
		err   error
	)
	switch {
	case req.All:
		count, err = h.store.MarkAllRead(r.Context(), req.Sender)
	case len(req.IDs) > 0:
		count, err = h.store.MarkRead(r.Context(), req.IDs)
	default:
		h.Error(w, http.StatusBadRequest, "ids or all is required")
		return
	}
	if err != nil {
		h.storeError(w, err)
		return
	}

	metrics.MessagesRead.Add(float64(count))
	h.JSON(w, http.StatusOK, map[string]int64{"count": count})
}

// Status handles GET /status: board counters plus presence snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}

	records, err := h.presence.Snapshot(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("presence snapshot failed")
		records = nil
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"stats":   stats,
		"clients": records,
	})
}
