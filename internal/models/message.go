package models

// Priority classifies how a message should be treated by consumers.
// It is informational: the store never reorders deliveries by priority,
// with the single exception of the urgent override in the wait primitive.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Message is a single entry on the board.
type Message struct {
	ID        string   `json:"id"` // ULID
	Sender    string   `json:"sender"`
	Content   string   `json:"content"`
	CreatedAt int64    `json:"created_at"` // Unix seconds, store-assigned
	Read      bool     `json:"read"`
	ReplyTo   string   `json:"reply_to,omitempty"` // unenforced reference
	Priority  Priority `json:"priority"`
}
