package models

// PresenceStatus is the stored liveness status of a client.
type PresenceStatus string

const (
	StatusListening PresenceStatus = "listening"
	StatusOnline    PresenceStatus = "online"
	StatusOffline   PresenceStatus = "offline"
)

// PresenceRecord tracks liveness of one client.
type PresenceRecord struct {
	ClientID     string         `json:"client_id"`
	Status       PresenceStatus `json:"status"`
	LastSeen     int64          `json:"last_seen"` // Unix seconds
	MessageCount int64          `json:"message_count"`
	Capabilities string         `json:"capabilities,omitempty"`
}

// EffectiveStatus computes the status as seen by a reader at time now.
// A record whose last_seen is older than the timeout is offline no matter
// what was stored; expiry is evaluated at read time, not by a sweeper.
func (r PresenceRecord) EffectiveStatus(now, timeoutSeconds int64) PresenceStatus {
	if now-r.LastSeen > timeoutSeconds {
		return StatusOffline
	}
	return r.Status
}
