// Package store provides SQLite persistence for local marks: which threads
// were read (and how many comments they had then) and what was bookmarked.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Kind is the record type a mark refers to.
type Kind string

const (
	KindBox     Kind = "box"
	KindThread  Kind = "thread"
	KindComment Kind = "comment"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Mark is the local state kept for one record.
type Mark struct {
	Kind  Kind
	ID    string
	Title string
	// Box locates the record again: the box slug for threads, the thread id
	// for comments.
	Box          string
	Read         bool
	Saved        bool
	SeenComments int // comment count when last read
	ReadAt       time.Time
	SavedAt      time.Time
}

// NewComments is how many comments arrived since the mark was read.
func (m Mark) NewComments(current int) int {
	if !m.Read || current <= m.SeenComments {
		return 0
	}
	return current - m.SeenComments
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=3000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS marks (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		box TEXT NOT NULL DEFAULT '',
		read INTEGER NOT NULL DEFAULT 0,
		saved INTEGER NOT NULL DEFAULT 0,
		seen_comments INTEGER NOT NULL DEFAULT 0,
		read_at INTEGER NOT NULL DEFAULT 0,
		saved_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_marks_saved ON marks(kind, saved, saved_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// MarkRead records that a record was opened with commentCount comments.
// Title and box are refreshed when non-empty.
// Thread-safe: acquires write lock.
func (s *Store) MarkRead(kind Kind, id, title, box string, commentCount int) error {
	if id == "" {
		return errors.New("mark read: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO marks (kind, id, title, box, read, seen_comments, read_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE marks.title END,
			box = CASE WHEN excluded.box != '' THEN excluded.box ELSE marks.box END,
			read = 1,
			seen_comments = excluded.seen_comments,
			read_at = excluded.read_at
	`, string(kind), id, title, box, commentCount, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("mark read %s/%s: %w", kind, id, err)
	}
	return nil
}

// MarkSaved sets or clears the bookmark on a record.
// Thread-safe: acquires write lock.
func (s *Store) MarkSaved(kind Kind, id, title, box string, saved bool) error {
	if id == "" {
		return errors.New("mark saved: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var savedAt int64
	if saved {
		savedAt = time.Now().UnixNano()
	}
	_, err := s.db.Exec(`
		INSERT INTO marks (kind, id, title, box, saved, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE marks.title END,
			box = CASE WHEN excluded.box != '' THEN excluded.box ELSE marks.box END,
			saved = excluded.saved,
			saved_at = excluded.saved_at
	`, string(kind), id, title, box, boolToInt(saved), savedAt)
	if err != nil {
		return fmt.Errorf("mark saved %s/%s: %w", kind, id, err)
	}
	return nil
}

// Get returns the mark for one record. ok is false when nothing is stored.
// Thread-safe: acquires read lock.
func (s *Store) Get(kind Kind, id string) (Mark, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	marks, err := s.queryMarks(`
		SELECT kind, id, title, box, read, saved, seen_comments, read_at, saved_at
		FROM marks WHERE kind = ? AND id = ?
	`, string(kind), id)
	if err != nil {
		return Mark{}, false, err
	}
	if len(marks) == 0 {
		return Mark{}, false, nil
	}
	return marks[0], true, nil
}

// Marks returns the stored marks for ids, keyed by id. Ids without a mark
// are absent from the map.
// Thread-safe: acquires read lock.
func (s *Store) Marks(kind Kind, ids []string) (map[string]Mark, error) {
	out := make(map[string]Mark, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, 0, len(ids)+1)
	args = append(args, string(kind))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `
		SELECT kind, id, title, box, read, saved, seen_comments, read_at, saved_at
		FROM marks WHERE kind = ? AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	marks, err := s.queryMarks(query, args...)
	if err != nil {
		return nil, err
	}
	for _, m := range marks {
		out[m.ID] = m
	}
	return out, nil
}

// Saved lists bookmarked records of kind, most recently saved first.
// Thread-safe: acquires read lock.
func (s *Store) Saved(kind Kind, limit int) ([]Mark, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMarks(`
		SELECT kind, id, title, box, read, saved, seen_comments, read_at, saved_at
		FROM marks WHERE kind = ? AND saved = 1
		ORDER BY saved_at DESC, id DESC
		LIMIT ?
	`, string(kind), limit)
}

// Counts returns how many records are marked read and saved.
// Thread-safe: acquires read lock.
func (s *Store) Counts() (read, saved int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRow(`SELECT COALESCE(SUM(read), 0), COALESCE(SUM(saved), 0) FROM marks`).Scan(&read, &saved)
	return read, saved, err
}

// queryMarks executes a query and scans results into Marks.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryMarks(query string, args ...any) ([]Mark, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []Mark
	for rows.Next() {
		var m Mark
		var kind string
		var readInt, savedInt int
		var readAt, savedAt int64
		if err := rows.Scan(&kind, &m.ID, &m.Title, &m.Box, &readInt, &savedInt, &m.SeenComments, &readAt, &savedAt); err != nil {
			return nil, err
		}
		m.Kind = Kind(kind)
		m.Read = readInt != 0
		m.Saved = savedInt != 0
		m.ReadAt = fromNanos(readAt)
		m.SavedAt = fromNanos(savedAt)
		marks = append(marks, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return marks, nil
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
