package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heihuo000/message-board-system/internal/models"
)

// recordTTL bounds how long a dead client's record lingers in Redis. It is
// deliberately much longer than the presence timeout so Snapshot can still
// report the client as offline for a while before the key evaporates.
const recordTTL = 24 * time.Hour

// RedisTracker stores one hash per client, for deployments where agents
// do not share a filesystem.
type RedisTracker struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisTracker connects to redisURL and verifies the connection.
func NewRedisTracker(ctx context.Context, redisURL string, timeout time.Duration) (*RedisTracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisTracker{client: client, timeout: timeout}, nil
}

func presenceKey(clientID string) string {
	return fmt.Sprintf("presence:%s", clientID)
}

// Register creates or resets the record for clientID.
func (t *RedisTracker) Register(ctx context.Context, clientID, capabilities string) error {
	key := presenceKey(clientID)

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":        string(models.StatusListening),
		"last_seen":     time.Now().Unix(),
		"message_count": 0,
		"capabilities":  capabilities,
	})
	pipe.Expire(ctx, key, recordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat bumps last_seen and revives offline records.
func (t *RedisTracker) Heartbeat(ctx context.Context, clientID string) error {
	key := presenceKey(clientID)
	now := time.Now().Unix()

	vals, err := t.client.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}

	fields := map[string]interface{}{"last_seen": now}
	status := models.PresenceStatus(vals["status"])
	lastSeen, _ := strconv.ParseInt(vals["last_seen"], 10, 64)

	switch {
	case len(vals) == 0:
		fields["status"] = string(models.StatusOnline)
		fields["message_count"] = 0
	case status == models.StatusOffline,
		now-lastSeen > int64(t.timeout.Seconds()):
		fields["status"] = string(models.StatusOnline)
	}

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, recordTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// SetListening marks clientID as actively waiting for messages.
func (t *RedisTracker) SetListening(ctx context.Context, clientID string) error {
	return t.setStatus(ctx, clientID, models.StatusListening)
}

// SetOffline marks clientID as gone.
func (t *RedisTracker) SetOffline(ctx context.Context, clientID string) error {
	return t.setStatus(ctx, clientID, models.StatusOffline)
}

func (t *RedisTracker) setStatus(ctx context.Context, clientID string, status models.PresenceStatus) error {
	key := presenceKey(clientID)

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":    string(status),
		"last_seen": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, recordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// IncrementMessageCount bumps the informational send counter.
func (t *RedisTracker) IncrementMessageCount(ctx context.Context, clientID string) error {
	key := presenceKey(clientID)

	pipe := t.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "message_count", 1)
	pipe.HSet(ctx, key, "last_seen", time.Now().Unix())
	pipe.Expire(ctx, key, recordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot scans all presence keys and applies effective status.
func (t *RedisTracker) Snapshot(ctx context.Context) ([]models.PresenceRecord, error) {
	now := time.Now().Unix()
	timeout := int64(t.timeout.Seconds())

	var records []models.PresenceRecord
	iter := t.client.Scan(ctx, 0, "presence:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		vals, err := t.client.HGetAll(ctx, key).Result()
		if err != nil || len(vals) == 0 {
			continue
		}

		lastSeen, _ := strconv.ParseInt(vals["last_seen"], 10, 64)
		count, _ := strconv.ParseInt(vals["message_count"], 10, 64)

		rec := models.PresenceRecord{
			ClientID:     key[len("presence:"):],
			Status:       models.PresenceStatus(vals["status"]),
			LastSeen:     lastSeen,
			MessageCount: count,
			Capabilities: vals["capabilities"],
		}
		rec.Status = rec.EffectiveStatus(now, timeout)
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Ping checks the Redis connection.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
