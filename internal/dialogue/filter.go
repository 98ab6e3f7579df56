package dialogue

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/heihuo000/message-board-system/internal/models"
)

// Filter drops duplicate message content within a dialogue session. The
// board's cleanup also deduplicates, but lazily; this catches the window
// before a sweep runs. Urgent messages always pass.
type Filter struct {
	watermark int64
	seen      map[string]struct{}
}

// NewFilter creates a Filter that ignores messages at or before watermark.
func NewFilter(watermark int64) *Filter {
	return &Filter{
		watermark: watermark,
		seen:      make(map[string]struct{}),
	}
}

// ShouldProcess reports whether msg is new to this session.
func (f *Filter) ShouldProcess(msg *models.Message) bool {
	if msg.Priority == models.PriorityUrgent {
		return true
	}
	if msg.CreatedAt <= f.watermark {
		return false
	}

	sum := sha256.Sum256([]byte(msg.Sender + "\x00" + msg.Content))
	key := hex.EncodeToString(sum[:])
	if _, dup := f.seen[key]; dup {
		return false
	}
	f.seen[key] = struct{}{}
	f.watermark = msg.CreatedAt
	return true
}
