package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/heihuo000/message-board-system/internal/models"
	"github.com/heihuo000/message-board-system/internal/presence"
	"github.com/heihuo000/message-board-system/internal/store"
	"github.com/heihuo000/message-board-system/internal/wait"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(dir, "board.db"), store.CleanupPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	tracker, err := presence.NewFileTracker(filepath.Join(dir, "presence.json"), 120*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	waiter := wait.NewWithInterval(s, 10*time.Millisecond)
	return NewHandler(s, tracker, waiter, zerolog.Nop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(into); err != nil {
		t.Fatal(err)
	}
}

func TestSendMessage(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.SendMessage, "/messages", SendMessageRequest{
		Sender:  "alice",
		Content: "deployment finished, please verify the results",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp SendMessageResponse
	decode(t, w, &resp)
	if resp.ID == "" || resp.CreatedAt == 0 {
		t.Fatalf("incomplete ack: %+v", resp)
	}
}

func TestSendMessageValidation(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.SendMessage, "/messages", SendMessageRequest{Sender: "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty content should be rejected, got %d", w.Code)
	}

	w = postJSON(t, h.SendMessage, "/messages", SendMessageRequest{
		Sender: "alice", Content: "valid content here", Priority: "critical",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown priority should be rejected, got %d", w.Code)
	}
}

func TestReadMessagesFilters(t *testing.T) {
	h := newTestHandler(t)

	for i, sender := range []string{"alice", "bob", "bob"} {
		w := postJSON(t, h.SendMessage, "/messages", SendMessageRequest{
			Sender:  sender,
			Content: fmt.Sprintf("message number %d with enough content", i),
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("send %d failed: %d", i, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/messages?sender=bob", nil)
	w := httptest.NewRecorder()
	h.ReadMessages(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}
	decode(t, w, &resp)
	if resp.Count != 2 {
		t.Fatalf("expected 2 messages from bob, got %d", resp.Count)
	}

	req = httptest.NewRequest("GET", "/messages?limit=bogus", nil)
	w = httptest.NewRecorder()
	h.ReadMessages(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit should be rejected, got %d", w.Code)
	}
}

func TestSendWaitMarkReadFlow(t *testing.T) {
	h := newTestHandler(t)

	// Bob posts, then Alice's wait resolves with it.
	w := postJSON(t, h.SendMessage, "/messages", SendMessageRequest{
		Sender:  "bob",
		Content: "hello alice, are you receiving this",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("send failed: %d", w.Code)
	}

	w = postJSON(t, h.Wait, "/wait", WaitRequest{
		ClientID:       "alice",
		Watermark:      0,
		TimeoutSeconds: 5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("wait failed: %d: %s", w.Code, w.Body.String())
	}

	var waitResp WaitResponse
	decode(t, w, &waitResp)
	if !waitResp.Found || waitResp.Message.Sender != "bob" {
		t.Fatalf("wait should resolve with bob's message: %+v", waitResp)
	}

	// Mark it read; unread listing is then empty.
	w = postJSON(t, h.MarkRead, "/messages/read", MarkReadRequest{IDs: []string{waitResp.Message.ID}})
	if w.Code != http.StatusOK {
		t.Fatalf("mark read failed: %d", w.Code)
	}
	var markResp struct {
		Count int64 `json:"count"`
	}
	decode(t, w, &markResp)
	if markResp.Count != 1 {
		t.Fatalf("expected 1 marked, got %d", markResp.Count)
	}

	req := httptest.NewRequest("GET", "/messages?unread=true", nil)
	rec := httptest.NewRecorder()
	h.ReadMessages(rec, req)

	var listResp struct {
		Count int `json:"count"`
	}
	decode(t, rec, &listResp)
	if listResp.Count != 0 {
		t.Fatalf("expected no unread messages, got %d", listResp.Count)
	}
}

func TestWaitTimeoutReturnsNotFound(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.Wait, "/wait", WaitRequest{
		ClientID:       "alice",
		TimeoutSeconds: 0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp WaitResponse
	decode(t, w, &resp)
	if resp.Found {
		t.Fatal("empty board wait should report found=false")
	}
}

func TestWaitValidation(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.Wait, "/wait", WaitRequest{TimeoutSeconds: 5})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing client_id should be rejected, got %d", w.Code)
	}

	w = postJSON(t, h.Wait, "/wait", WaitRequest{ClientID: "alice", TimeoutSeconds: 4000})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized timeout should be rejected, got %d", w.Code)
	}
}

func TestWaitExcludesOwnMessages(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.SendMessage, "/messages", SendMessageRequest{
		Sender:  "alice",
		Content: "alice talking to herself on the board",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("send failed: %d", w.Code)
	}

	w = postJSON(t, h.Wait, "/wait", WaitRequest{ClientID: "alice", TimeoutSeconds: 0})
	var resp WaitResponse
	decode(t, w, &resp)
	if resp.Found {
		t.Fatal("a client's own message must not resolve its wait")
	}
}

func TestPresenceLifecycle(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.Register, "/presence/register", RegisterRequest{ClientID: "alice", Capabilities: "review"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	w = postJSON(t, h.Heartbeat, "/presence/heartbeat", HeartbeatRequest{ClientID: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("heartbeat failed: %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/presence", nil)
	rec := httptest.NewRecorder()
	h.GetPresence(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("presence listing failed: %d", rec.Code)
	}

	var resp struct {
		Clients []models.PresenceRecord `json:"clients"`
		Count   int                     `json:"count"`
	}
	decode(t, rec, &resp)
	if resp.Count != 1 || resp.Clients[0].ClientID != "alice" {
		t.Fatalf("unexpected presence snapshot: %+v", resp)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.SendMessage, "/messages", SendMessageRequest{
		Sender:  "alice",
		Content: "a message so the counters are not empty",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("send failed: %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status failed: %d", rec.Code)
	}

	var resp struct {
		Stats store.Stats `json:"stats"`
	}
	decode(t, rec, &resp)
	if resp.Stats.TotalMessages != 1 || resp.Stats.UnreadMessages != 1 {
		t.Fatalf("unexpected stats: %+v", resp.Stats)
	}
}

func TestSearchEndpoint(t *testing.T) {
	h := newTestHandler(t)

	for _, content := range []string{
		"deploy finished on the staging cluster",
		"lunch plans for the team this friday",
	} {
		w := postJSON(t, h.SendMessage, "/messages", SendMessageRequest{Sender: "alice", Content: content})
		if w.Code != http.StatusCreated {
			t.Fatalf("send failed: %d", w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/find?q=deploy", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("search failed: %d", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rec, &resp)
	if resp.Count != 1 {
		t.Fatalf("expected 1 hit, got %d", resp.Count)
	}

	req = httptest.NewRequest("GET", "/find", nil)
	rec = httptest.NewRecorder()
	h.Search(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing keyword should be rejected, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy status, got %s", resp.Status)
	}
}
