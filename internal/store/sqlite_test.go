package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heihuo000/message-board-system/internal/models"
)

func newTestStore(t *testing.T, policy CleanupPolicy) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "board.db"), policy)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertRaw bypasses Append so tests can control id and created_at.
func insertRaw(t *testing.T, s *SQLiteStore, id, sender, content string, createdAt int64, read bool) {
	t.Helper()
	readVal := 0
	if read {
		readVal = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (id, sender, content, created_at, read, reply_to, priority)
		VALUES (?, ?, ?, ?, ?, NULL, 'normal')
	`, id, sender, content, createdAt, readVal)
	if err != nil {
		t.Fatal(err)
	}
}

func TestAppendAssignsOrderedIDs(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	contents := []string{
		"first message with plenty of content",
		"second message with plenty of content",
		"third message with plenty of content",
	}
	for _, c := range contents {
		if _, err := s.Append(ctx, "alice", c, models.PriorityNormal, ""); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Fatalf("message %d out of order: %q", i, m.Content)
		}
		if i > 0 && msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("ids not increasing: %s then %s", msgs[i-1].ID, msgs[i].ID)
		}
		if i > 0 && msgs[i].CreatedAt < msgs[i-1].CreatedAt {
			t.Fatal("created_at went backwards")
		}
	}
}

func TestAppendValidation(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	cases := []struct {
		name     string
		sender   string
		content  string
		priority models.Priority
	}{
		{"empty sender", "", "some reasonable content here", models.PriorityNormal},
		{"empty content", "alice", "", models.PriorityNormal},
		{"oversized content", "alice", strings.Repeat("x", MaxContentBytes+1), models.PriorityNormal},
		{"unknown priority", "alice", "some reasonable content here", "critical"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Append(ctx, tc.sender, tc.content, tc.priority, "")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestAppendRoundTrip(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	sent, err := s.Append(ctx, "bob", "an urgent request that needs attention", models.PriorityUrgent, "parent-id")
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("message not found after append")
	}
	if got.Sender != "bob" || got.Content != sent.Content {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Priority != models.PriorityUrgent {
		t.Fatalf("expected urgent priority, got %s", got.Priority)
	}
	if got.ReplyTo != "parent-id" {
		t.Fatalf("expected reply_to preserved, got %q", got.ReplyTo)
	}
	if got.Read {
		t.Fatal("new message should be unread")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})

	got, err := s.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing id, got %+v", got)
	}
}

func TestWatermarkStrictlyGreater(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	insertRaw(t, s, "a1", "alice", "message at one hundred seconds", 100, false)
	insertRaw(t, s, "a2", "alice", "message at two hundred seconds", 200, false)
	insertRaw(t, s, "a3", "alice", "message at three hundred seconds", 300, false)

	msgs, err := s.Query(ctx, Filter{After: 200})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].CreatedAt != 300 {
		t.Fatalf("After=200 should return only the 300 row, got %+v", msgs)
	}

	msgs, err = s.Query(ctx, Filter{After: 300})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("After=300 should return nothing, got %d rows", len(msgs))
	}
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	insertRaw(t, s, "b1", "alice", "unread message from alice on the board", 100, false)
	insertRaw(t, s, "b2", "bob", "already read message from bob here", 110, true)
	insertRaw(t, s, "b3", "bob", "unread message from bob on the board", 120, false)

	msgs, err := s.Query(ctx, Filter{UnreadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 unread, got %d", len(msgs))
	}

	msgs, err = s.Query(ctx, Filter{ExcludeSender: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if m.Sender == "alice" {
			t.Fatal("exclude_sender leaked alice's message")
		}
	}

	msgs, err = s.Query(ctx, Filter{Sender: "bob", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Sender != "bob" {
		t.Fatalf("sender+limit filter broken: %+v", msgs)
	}
}

func TestMarkReadCountsOnlyFlipped(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	insertRaw(t, s, "c1", "alice", "first message awaiting acknowledgement", 100, false)
	insertRaw(t, s, "c2", "alice", "second message awaiting acknowledgement", 110, false)

	count, err := s.MarkRead(ctx, []string{"c1", "c2", "missing-id"})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 flipped, got %d", count)
	}

	// Second call is a no-op.
	count, err = s.MarkRead(ctx, []string{"c1", "c2"})
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected 0 on repeat, got %d", count)
	}

	count, err = s.MarkRead(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for empty ids, got %d", count)
	}
}

func TestMarkAllReadExcludesSender(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	insertRaw(t, s, "d1", "alice", "alice's own message should stay unread", 100, false)
	insertRaw(t, s, "d2", "bob", "bob's message should be flagged read", 110, false)

	count, err := s.MarkAllRead(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 flipped, got %d", count)
	}

	own, err := s.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if own.Read {
		t.Fatal("own message must not be marked read")
	}
}

func TestCleanupExpired(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{MaxAge: time.Hour})
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour).Unix()
	fresh := time.Now().Unix()
	insertRaw(t, s, "e1", "alice", "stale message well past the hour", old, false)
	insertRaw(t, s, "e2", "alice", "fresh message inside the window", fresh, false)

	res, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Expired != 1 {
		t.Fatalf("expected 1 expired, got %d", res.Expired)
	}

	if got, _ := s.Get(ctx, "e1"); got != nil {
		t.Fatal("stale message survived cleanup")
	}
	if got, _ := s.Get(ctx, "e2"); got == nil {
		t.Fatal("fresh message removed by cleanup")
	}
}

func TestCleanupShortKeepsSoleSurvivor(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{MinContentLength: 20})
	ctx := context.Background()

	now := time.Now().Unix()
	insertRaw(t, s, "f1", "alice", "ok", now, false)

	res, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Short != 0 {
		t.Fatalf("sole short message must survive, removed %d", res.Short)
	}
	if got, _ := s.Get(ctx, "f1"); got == nil {
		t.Fatal("sole short message was deleted")
	}
}

func TestCleanupShortDuplicatesKeepEarliest(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{MinContentLength: 20})
	ctx := context.Background()

	now := time.Now().Unix()
	insertRaw(t, s, "g1", "alice", "ok", now, false)
	insertRaw(t, s, "g2", "alice", "ok", now+1, false)
	insertRaw(t, s, "g3", "alice", "ok", now+2, false)

	res, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Short != 2 {
		t.Fatalf("expected 2 short duplicates removed, got %d", res.Short)
	}
	if got, _ := s.Get(ctx, "g1"); got == nil {
		t.Fatal("earliest copy must survive")
	}
}

func TestCleanupDuplicatesKeepEarliest(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	now := time.Now().Unix()
	content := "the same long content repeated by a retrying sender"
	insertRaw(t, s, "h1", "alice", content, now, false)
	insertRaw(t, s, "h2", "alice", content, now+5, false)
	// Same content from a different sender is not a duplicate.
	insertRaw(t, s, "h3", "bob", content, now+5, false)

	res, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate removed, got %d", res.Duplicates)
	}
	if got, _ := s.Get(ctx, "h1"); got == nil {
		t.Fatal("earliest copy must survive")
	}
	if got, _ := s.Get(ctx, "h3"); got == nil {
		t.Fatal("other sender's copy must survive")
	}
}

func TestSearchNewestFirst(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	insertRaw(t, s, "i1", "alice", "deploy finished on staging cluster", 100, false)
	insertRaw(t, s, "i2", "bob", "deploy started on production cluster", 200, false)
	insertRaw(t, s, "i3", "bob", "unrelated chatter about lunch plans", 300, false)

	msgs, err := s.Search(ctx, "deploy", Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(msgs))
	}
	if msgs[0].CreatedAt != 200 {
		t.Fatal("search results must be newest first")
	}

	if _, err := s.Search(ctx, "", Filter{}); !IsValidation(err) {
		t.Fatalf("empty keyword should be a validation error, got %v", err)
	}
}

func TestSearchHonorsFilter(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	insertRaw(t, s, "k1", "alice", "deploy finished on staging cluster", 100, false)
	insertRaw(t, s, "k2", "bob", "deploy started on production cluster", 200, false)
	insertRaw(t, s, "k3", "bob", "deploy rolled back on production cluster", 300, false)

	msgs, err := s.Search(ctx, "deploy", Filter{After: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("After=100 should exclude the 100 row, got %d hits", len(msgs))
	}
	for _, m := range msgs {
		if m.CreatedAt <= 100 {
			t.Fatalf("watermark leaked row at %d", m.CreatedAt)
		}
	}

	msgs, err = s.Search(ctx, "deploy", Filter{Sender: "bob", After: 200})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "k3" {
		t.Fatalf("sender+after should leave only k3, got %+v", msgs)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	insertRaw(t, s, "j1", "alice", "read message counted in total only", 100, true)
	insertRaw(t, s, "j2", "bob", "unread message counted in both stats", 250, false)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalMessages != 2 || st.UnreadMessages != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.LatestCreatedAt != 250 {
		t.Fatalf("expected latest 250, got %d", st.LatestCreatedAt)
	}
}

func TestAppendMonotonicCreatedAt(t *testing.T) {
	s := newTestStore(t, CleanupPolicy{})
	ctx := context.Background()

	// Simulate a wall clock jump backwards.
	future := time.Now().Add(time.Hour).Unix()
	s.mu.Lock()
	s.lastTS = future
	s.mu.Unlock()

	msg, err := s.Append(ctx, "alice", "message appended after a clock step", models.PriorityNormal, "")
	if err != nil {
		t.Fatal(err)
	}
	if msg.CreatedAt < future {
		t.Fatalf("created_at went backwards: %d < %d", msg.CreatedAt, future)
	}
}
