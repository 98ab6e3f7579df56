package handlers

import (
	"net/http"
	"strconv"

	"github.com/heihuo000/message-board-system/internal/metrics"
	"github.com/heihuo000/message-board-system/internal/store"
)

// Search handles GET /find?q=keyword&sender=...&limit=N.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	keyword := q.Get("q")
	if keyword == "" {
		h.Error(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	f := store.Filter{Sender: q.Get("sender")}
	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 1 {
			h.Error(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		f.Limit = v
	}

	msgs, err := h.store.Search(r.Context(), keyword, f)
	if err != nil {
		h.storeError(w, err)
		return
	}

	metrics.SearchQueries.Inc()
	h.JSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}
