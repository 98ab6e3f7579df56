package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/heihuo000/message-board-system/internal/models"
)

// SQLiteStore is the default MessageStore backing: a WAL-mode database on
// a shared filesystem. WAL gives one writer plus concurrent readers, which
// matches the board's access pattern.
type SQLiteStore struct {
	db     *sql.DB
	policy CleanupPolicy

	mu      sync.Mutex // serializes Append; guards lastTS and entropy
	lastTS  int64
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens (creating if needed) the board database at dbPath.
// If dbPath is empty, defaults to "./data/board.db".
func NewSQLiteStore(ctx context.Context, dbPath string, policy CleanupPolicy) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/board.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, unavailable(err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, unavailable(err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable(err)
	}

	s := &SQLiteStore{
		db:      db,
		policy:  policy,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, unavailable(err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		reply_to TEXT,
		priority TEXT NOT NULL DEFAULT 'normal'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_read ON messages(read);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append inserts a new message. The assigned created_at never goes
// backwards even if the wall clock does, so it can serve as a watermark.
func (s *SQLiteStore) Append(ctx context.Context, sender, content string, priority models.Priority, replyTo string) (*models.Message, error) {
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

	msg := &models.Message{
		ID:        id.String(),
		Sender:    sender,
		Content:   content,
		CreatedAt: now,
		ReplyTo:   replyTo,
		Priority:  priority,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender, content, created_at, read, reply_to, priority)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, msg.ID, msg.Sender, msg.Content, msg.CreatedAt, nullable(msg.ReplyTo), string(msg.Priority))
	s.mu.Unlock()
	if err != nil {
		return nil, unavailable(err)
	}

	// Housekeeping is best-effort; the append already committed.
	_, _ = s.Cleanup(ctx)

	return msg, nil
}

// Query returns messages matching f in created_at, id order.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]models.Message, error) {
	query := `SELECT id, sender, content, created_at, read, reply_to, priority FROM messages WHERE 1=1`
	var params []interface{}

	if f.UnreadOnly {
		query += " AND read = 0"
	}
	if f.ExcludeSender != "" {
		query += " AND sender != ?"
		params = append(params, f.ExcludeSender)
	}
	if f.Sender != "" {
		query += " AND sender = ?"
		params = append(params, f.Sender)
	}
	if f.After > 0 {
		query += " AND created_at > ?"
		params = append(params, f.After)
	}
	if f.Priority != "" {
		query += " AND priority = ?"
		params = append(params, string(f.Priority))
	}

	query += " ORDER BY created_at ASC, id ASC LIMIT ?"
	params = append(params, limitOrDefault(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Get returns the message with the given id, or nil if absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender, content, created_at, read, reply_to, priority
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return msg, nil
}

// MarkRead flips the given messages to read, counting only rows that were
// unread. Marking an already-read message is a no-op, not an error.
func (s *SQLiteStore) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	params := make([]interface{}, len(ids))
	for i, id := range ids {
		params[i] = id
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET read = 1 WHERE id IN ("+placeholders+") AND read = 0",
		params...)
	if err != nil {
		return 0, unavailable(err)
	}
	return res.RowsAffected()
}

// MarkAllRead flips every unread message not sent by excludeSender.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, excludeSender string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET read = 1 WHERE read = 0 AND sender != ?",
		excludeSender)
	if err != nil {
		return 0, unavailable(err)
	}
	return res.RowsAffected()
}

// Cleanup removes expired rows, then short and duplicate rows, keeping the
// earliest row of every (content, sender) pair. It runs in one transaction
// so a concurrent Query sees either the old or the new snapshot, never a
// partial delete.
func (s *SQLiteStore) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, unavailable(err)
	}
	defer tx.Rollback()

	if s.policy.MaxAge > 0 {
		cutoff := time.Now().Add(-s.policy.MaxAge).Unix()
		res, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE created_at < ?", cutoff)
		if err != nil {
			return result, unavailable(err)
		}
		result.Expired, _ = res.RowsAffected()
	}

	// The sole-survivor guard: only rows that are NOT the earliest of
	// their (content, sender) group are eligible, so the last copy of any
	// message always survives, short or not.
	if s.policy.MinContentLength > 0 {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE length(content) < ?
			AND id NOT IN (SELECT MIN(id) FROM messages GROUP BY content, sender)
		`, s.policy.MinContentLength)
		if err != nil {
			return result, unavailable(err)
		}
		result.Short, _ = res.RowsAffected()
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id NOT IN (SELECT MIN(id) FROM messages GROUP BY content, sender)
	`)
	if err != nil {
		return result, unavailable(err)
	}
	result.Duplicates, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return result, unavailable(err)
	}
	return result, nil
}

// Search returns messages containing keyword, newest first.
func (s *SQLiteStore) Search(ctx context.Context, keyword string, f Filter) ([]models.Message, error) {
	if keyword == "" {
		return nil, &ValidationError{Field: "keyword", Reason: "keyword is required"}
	}

	query := `SELECT id, sender, content, created_at, read, reply_to, priority FROM messages WHERE content LIKE ?`
	params := []interface{}{"%" + keyword + "%"}

	if f.Sender != "" {
		query += " AND sender = ?"
		params = append(params, f.Sender)
	}
	if f.After > 0 {
		query += " AND created_at > ?"
		params = append(params, f.After)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	params = append(params, limitOrDefault(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Stats returns board-level counters.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&st.TotalMessages); err != nil {
		return st, unavailable(err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE read = 0").Scan(&st.UnreadMessages); err != nil {
		return st, unavailable(err)
	}

	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM messages").Scan(&latest); err != nil {
		return st, unavailable(err)
	}
	if latest.Valid {
		st.LatestCreatedAt = latest.Int64
	}

	return st, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg      models.Message
		read     int
		replyTo  sql.NullString
		priority string
	)
	if err := row.Scan(&msg.ID, &msg.Sender, &msg.Content, &msg.CreatedAt, &read, &replyTo, &priority); err != nil {
		return nil, err
	}
	msg.Read = read != 0
	msg.ReplyTo = replyTo.String
	msg.Priority = models.Priority(priority)
	if msg.Priority == "" {
		msg.Priority = models.PriorityNormal
	}
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
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

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
