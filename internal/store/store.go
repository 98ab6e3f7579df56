package store

import (
	"context"
	"time"

	"github.com/heihuo000/message-board-system/internal/models"
)

// MaxContentBytes is the practical cap on message content. Larger payloads
// belong in a file the message points at, not on the board.
const MaxContentBytes = 8192

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	UnreadOnly    bool
	ExcludeSender string
	Sender        string
	After         int64 // strictly greater than this created_at watermark
	Priority      models.Priority
	Limit         int // defaults to 100 when <= 0
}

// Stats summarizes the board.
type Stats struct {
	TotalMessages   int64 `json:"total_messages"`
	UnreadMessages  int64 `json:"unread_messages"`
	LatestCreatedAt int64 `json:"latest_created_at,omitempty"`
}

// CleanupResult reports rows removed per rule.
type CleanupResult struct {
	Short      int64 `json:"short"`
	Duplicates int64 `json:"duplicates"`
	Expired    int64 `json:"expired"`
}

// Total returns the number of rows removed.
func (r CleanupResult) Total() int64 {
	return r.Short + r.Duplicates + r.Expired
}

// CleanupPolicy controls which messages the lossy cleanup pass removes.
// Rules are heuristics against flooding, not correctness guarantees:
// automated senders tend to repeat short acknowledgement strings, and the
// TTL bounds unbounded growth. A rule is disabled by its zero value.
//
// The short-message and duplicate rules never remove the sole surviving
// row for a (content, sender) pair; a unique short message lives until
// its TTL expires. When duplicates exist, the row with the lowest id
// (earliest, since ids are ULIDs) is kept as canonical.
type CleanupPolicy struct {
	MinContentLength int
	MaxAge           time.Duration
}

// DefaultCleanupPolicy returns the stock policy: 20-character minimum,
// one-hour TTL.
func DefaultCleanupPolicy() CleanupPolicy {
	return CleanupPolicy{
		MinContentLength: 20,
		MaxAge:           time.Hour,
	}
}

// MessageStore is the durable message table. Implementations must make a
// committed Append visible to all readers at once (no torn reads) and
// keep Query results in non-decreasing created_at order.
type MessageStore interface {
	// Append validates and stores a new message, assigning its id and
	// created_at. created_at is monotonically non-decreasing across
	// appends. Cleanup is attempted opportunistically after the insert;
	// a cleanup failure never fails the append.
	Append(ctx context.Context, sender, content string, priority models.Priority, replyTo string) (*models.Message, error)

	// Query returns messages matching f, ordered by created_at then id.
	Query(ctx context.Context, f Filter) ([]models.Message, error)

	// Get returns a message by id, or nil if it does not exist.
	Get(ctx context.Context, id string) (*models.Message, error)

	// MarkRead flags the given messages as read and returns the number of
	// rows actually flipped. Already-read and unknown ids are skipped, not
	// errors.
	MarkRead(ctx context.Context, ids []string) (int64, error)

	// MarkAllRead flags every unread message not sent by excludeSender.
	MarkAllRead(ctx context.Context, excludeSender string) (int64, error)

	// Cleanup applies the store's CleanupPolicy in one transaction so a
	// concurrent Query never observes a partial delete.
	Cleanup(ctx context.Context) (CleanupResult, error)

	// Search returns messages whose content contains keyword, newest
	// first, further narrowed by f.
	Search(ctx context.Context, keyword string, f Filter) ([]models.Message, error)

	// Stats returns board-level counters.
	Stats(ctx context.Context) (Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

// ValidateMessage rejects a message before any write is attempted.
func ValidateMessage(sender, content string, priority models.Priority) error {
	if sender == "" {
		return &ValidationError{Field: "sender", Reason: "sender is required"}
	}
	if content == "" {
		return &ValidationError{Field: "content", Reason: "content is required"}
	}
	if len(content) > MaxContentBytes {
		return &ValidationError{Field: "content", Reason: "content too long"}
	}
	if !priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	return nil
}
