// Package presence tracks client liveness. Expiry is lazy: a record whose
// last_seen is older than the timeout reads as offline without any sweeper
// having touched it, so a crashed client shows offline immediately.
package presence

import (
	"context"
	"time"

	"github.com/heihuo000/message-board-system/internal/models"
)

// DefaultTimeout is how long a client may stay silent before readers
// consider it offline.
const DefaultTimeout = 120 * time.Second

// Tracker is the per-client liveness registry.
type Tracker interface {
	// Register creates or resets the record for clientID with status
	// listening and a zeroed message count.
	Register(ctx context.Context, clientID, capabilities string) error

	// Heartbeat bumps last_seen. An offline or expired record is promoted
	// back to online; an unknown client is created as online.
	Heartbeat(ctx context.Context, clientID string) error

	SetListening(ctx context.Context, clientID string) error
	SetOffline(ctx context.Context, clientID string) error

	// IncrementMessageCount bumps the informational send counter.
	IncrementMessageCount(ctx context.Context, clientID string) error

	// Snapshot returns every record with its effective status computed
	// against the tracker's timeout at read time.
	Snapshot(ctx context.Context) ([]models.PresenceRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
