package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists a message audit trail in a local SQLite database.
// Auditing is best-effort: callers log insert failures and move on.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one audited chat message.
type Entry struct {
	ChatID    int64
	UserID    int64
	Direction string // in | out
	Kind      string // command | text | callback | reply
	Content   string
	CreatedAt time.Time
}

// Open connects to the SQLite database at path and applies migrations.
func Open(ctx context.Context, path string, filesystem fs.FS, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit database path is empty")
	}

	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With("component", "audit"),
	}
	if err := s.migrate(ctx, filesystem); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context, filesystem fs.FS) error {
	entries, err := fs.ReadDir(filesystem, "sqlite")
	if err != nil {
		return fmt.Errorf("read audit migrations: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sqlBytes, err := fs.ReadFile(filesystem, "sqlite/"+entry.Name())
		if err != nil {
			return fmt.Errorf("read audit migration %s: %w", entry.Name(), err)
		}
		if len(sqlBytes) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply audit migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Insert stores one audit entry.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO messages (chat_id, user_id, direction, kind, content, created_at)
VALUES (?, ?, ?, ?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, q, e.ChatID, e.UserID, e.Direction, e.Kind, e.Content, e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListRecent returns the latest audited messages for a user.
func (s *Store) ListRecent(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT chat_id, user_id, direction, kind, content, created_at
FROM messages
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ChatID, &e.UserID, &e.Direction, &e.Kind, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
