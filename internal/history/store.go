package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Feedback is one thumbs-up/down vote on a bot response.
type Feedback struct {
	Session string
	// Index is the position of the exchange in the session log.
	Index int
	Liked bool
	// Value is the response text the vote refers to.
	Value string
}

// Store persists session exchanges and feedback. Implementations must be
// safe for concurrent use.
type Store interface {
	// Append persists exchanges for session, in order.
	Append(ctx context.Context, session string, exchanges ...Exchange) error
	// Load returns all exchanges for session, oldest first.
	Load(ctx context.Context, session string) ([]Exchange, error)
	// Delete removes all exchanges of session.
	Delete(ctx context.Context, session string) error
	// RecordFeedback persists one vote.
	RecordFeedback(ctx context.Context, fb Feedback) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.raggpt/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".raggpt")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One connection: serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS exchanges (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session      TEXT    NOT NULL,
    user_message TEXT    NOT NULL,
    bot_response TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges (session, id);

CREATE TABLE IF NOT EXISTS feedback (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    session        TEXT    NOT NULL,
    exchange_index INTEGER NOT NULL,
    liked          INTEGER NOT NULL CHECK(liked IN (0, 1)),
    value          TEXT    NOT NULL,
    created_at     INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append persists exchanges for session in a single transaction.
func (s *SQLiteStore) Append(ctx context.Context, session string, exchanges ...Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO exchanges (session, user_message, bot_response, created_at) VALUES (?, ?, ?, ?)`
	now := time.Now().Unix()
	for _, ex := range exchanges {
		if _, err := tx.ExecContext(ctx, q, session, ex.User, ex.Bot, now); err != nil {
			return fmt.Errorf("history: append: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: append commit: %w", err)
	}
	return nil
}

// Load returns all exchanges for session, oldest first.
func (s *SQLiteStore) Load(ctx context.Context, session string) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_message, bot_response FROM exchanges WHERE session = ? ORDER BY id ASC`, session)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.User, &ex.Bot); err != nil {
			return nil, fmt.Errorf("history: load scan: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: load rows: %w", err)
	}
	return out, nil
}

// Delete removes all exchanges of session. Feedback rows are kept.
func (s *SQLiteStore) Delete(ctx context.Context, session string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE session = ?`, session); err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	return nil
}

// RecordFeedback persists one vote.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, fb Feedback) error {
	liked := 0
	if fb.Liked {
		liked = 1
	}
	const q = `INSERT INTO feedback (session, exchange_index, liked, value, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, fb.Session, fb.Index, liked, fb.Value, time.Now().Unix()); err != nil {
		return fmt.Errorf("history: record feedback: %w", err)
	}
	return nil
}

// FeedbackCounts returns the number of up and down votes recorded.
func (s *SQLiteStore) FeedbackCounts(ctx context.Context) (up, down int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(liked), 0), COALESCE(SUM(1 - liked), 0) FROM feedback`)
	if err := row.Scan(&up, &down); err != nil {
		return 0, 0, fmt.Errorf("history: feedback counts: %w", err)
	}
	return up, down, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}
