package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/heihuo000/message-board-system/internal/models"
)

// PostgresStore implements MessageStore on a pgx connection pool, for
// deployments where agents cannot share a filesystem.
type PostgresStore struct {
	pool   *pgxpool.Pool
	policy CleanupPolicy

	mu      sync.Mutex
	lastTS  int64
	entropy *ulid.MonotonicEntropy
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string, policy CleanupPolicy) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, unavailable(err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable(err)
	}

	s := &PostgresStore{
		pool:    pool,
		policy:  policy,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}

	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, unavailable(err)
	}

	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		reply_to TEXT,
		priority TEXT NOT NULL DEFAULT 'normal'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_read ON messages(read);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append inserts a new message with a monotonically non-decreasing
// created_at (per process; cross-process skew is bounded by the clock).
func (s *PostgresStore) Append(ctx context.Context, sender, content string, priority models.Priority, replyTo string) (*models.Message, error) {
	if err := ValidateMessage(sender, content, priority); err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := time.Now().Unix()
	if now < s.lastTS {
		now = s.lastTS
	}
	s.lastTS = now

	id, err := ulid.New(ulid.Timestamp(time.Unix(now, 0)), s.entropy)
	if err != nil {
		s.mu.Unlock()
		return nil, unavailable(err)
	}
	s.mu.Unlock()

	msg := &models.Message{
		ID:        id.String(),
		Sender:    sender,
		Content:   content,
		CreatedAt: now,
		ReplyTo:   replyTo,
		Priority:  priority,
	}

	var replyToPtr *string
	if replyTo != "" {
		replyToPtr = &replyTo
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender, content, created_at, read, reply_to, priority)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)
	`, msg.ID, msg.Sender, msg.Content, msg.CreatedAt, replyToPtr, string(msg.Priority))
	if err != nil {
		return nil, unavailable(err)
	}

	_, _ = s.Cleanup(ctx)

	return msg, nil
}

// Query returns messages matching f in created_at, id order.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]models.Message, error) {
	query := `SELECT id, sender, content, created_at, read, reply_to, priority FROM messages WHERE TRUE`
	var params []interface{}

	arg := func(v interface{}) string {
		params = append(params, v)
		return fmt.Sprintf("$%d", len(params))
	}

	if f.UnreadOnly {
		query += " AND NOT read"
	}
	if f.ExcludeSender != "" {
		query += " AND sender != " + arg(f.ExcludeSender)
	}
	if f.Sender != "" {
		query += " AND sender = " + arg(f.Sender)
	}
	if f.After > 0 {
		query += " AND created_at > " + arg(f.After)
	}
	if f.Priority != "" {
		query += " AND priority = " + arg(string(f.Priority))
	}

	query += " ORDER BY created_at ASC, id ASC LIMIT " + arg(limitOrDefault(f.Limit))

	rows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	return scanPgMessages(rows)
}

// Get returns the message with the given id, or nil if absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, sender, content, created_at, read, reply_to, priority
		FROM messages WHERE id = $1
	`, id)

	msg, err := scanPgMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return msg, nil
}

// MarkRead flips the given messages to read, counting only rows that were
// unread.
func (s *PostgresStore) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ct, err := s.pool.Exec(ctx,
		"UPDATE messages SET read = TRUE WHERE id = ANY($1) AND NOT read", ids)
	if err != nil {
		return 0, unavailable(err)
	}
	return ct.RowsAffected(), nil
}

// MarkAllRead flips every unread message not sent by excludeSender.
func (s *PostgresStore) MarkAllRead(ctx context.Context, excludeSender string) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		"UPDATE messages SET read = TRUE WHERE NOT read AND sender != $1", excludeSender)
	if err != nil {
		return 0, unavailable(err)
	}
	return ct.RowsAffected(), nil
}

// Cleanup applies the cleanup policy in a single transaction.
func (s *PostgresStore) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, unavailable(err)
	}
	defer tx.Rollback(ctx)

	if s.policy.MaxAge > 0 {
		cutoff := time.Now().Add(-s.policy.MaxAge).Unix()
		ct, err := tx.Exec(ctx, "DELETE FROM messages WHERE created_at < $1", cutoff)
		if err != nil {
			return result, unavailable(err)
		}
		result.Expired = ct.RowsAffected()
	}

	if s.policy.MinContentLength > 0 {
		ct, err := tx.Exec(ctx, `
			DELETE FROM messages
			WHERE length(content) < $1
			AND id NOT IN (SELECT MIN(id) FROM messages GROUP BY content, sender)
		`, s.policy.MinContentLength)
		if err != nil {
			return result, unavailable(err)
		}
		result.Short = ct.RowsAffected()
	}

	ct, err := tx.Exec(ctx, `
		DELETE FROM messages
		WHERE id NOT IN (SELECT MIN(id) FROM messages GROUP BY content, sender)
	`)
	if err != nil {
		return result, unavailable(err)
	}
	result.Duplicates = ct.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return result, unavailable(err)
	}
	return result, nil
}

// Search returns messages containing keyword, newest first.
func (s *PostgresStore) Search(ctx context.Context, keyword string, f Filter) ([]models.Message, error) {
	if keyword == "" {
		return nil, &ValidationError{Field: "keyword", Reason: "keyword is required"}
	}

	var params []interface{}
	arg := func(v interface{}) string {
		params = append(params, v)
		return fmt.Sprintf("$%d", len(params))
	}

	query := `SELECT id, sender, content, created_at, read, reply_to, priority FROM messages WHERE content LIKE ` + arg("%"+keyword+"%")

	if f.Sender != "" {
		query += " AND sender = " + arg(f.Sender)
	}
	if f.After > 0 {
		query += " AND created_at > " + arg(f.After)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limitOrDefault(f.Limit))

	rows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	return scanPgMessages(rows)
}

// Stats returns board-level counters.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT read), COALESCE(MAX(created_at), 0)
		FROM messages
	`).Scan(&st.TotalMessages, &st.UnreadMessages, &st.LatestCreatedAt)
	if err != nil {
		return st, unavailable(err)
	}
	return st, nil
}

func scanPgMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg      models.Message
		replyTo  *string
		priority string
	)
	if err := row.Scan(&msg.ID, &msg.Sender, &msg.Content, &msg.CreatedAt, &msg.Read, &replyTo, &priority); err != nil {
		return nil, err
	}
	if replyTo != nil {
		msg.ReplyTo = *replyTo
	}
	msg.Priority = models.Priority(priority)
	if msg.Priority == "" {
		msg.Priority = models.PriorityNormal
	}
	return &msg, nil
}

func scanPgMessages(rows pgx.Rows) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanPgMessage(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return messages, nil
}
