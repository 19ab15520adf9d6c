// Package store provides SQLite persistence for Flick's small on-device
// state: flags, feed resume metadata, and saved playback positions.
// None of it is load-bearing for correctness; losing the file means a
// fresh-start experience, nothing worse.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Resume is where the viewer left off in a feed
type Resume struct {
	FeedType  string
	ItemID    string
	UpdatedAt time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
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

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS flags (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS resume (
		feed_type TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		item_id TEXT PRIMARY KEY,
		offset_ms INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_updated ON positions(updated_at);
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

// SetFlag stores a boolean flag (e.g. "tutorial_shown")
func (s *Store) SetFlag(key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := 0
	if value {
		v = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO flags (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, v)
	if err != nil {
		return fmt.Errorf("set flag %s: %w", key, err)
	}
	return nil
}

// Flag reads a boolean flag, false when unset
func (s *Store) Flag(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v int
	err := s.db.QueryRow(`SELECT value FROM flags WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read flag %s: %w", key, err)
	}
	return v != 0, nil
}

// SaveResume records where the viewer is in a feed
func (s *Store) SaveResume(r Resume) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO resume (feed_type, item_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(feed_type) DO UPDATE SET item_id = excluded.item_id, updated_at = excluded.updated_at`,
		r.FeedType, r.ItemID, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save resume: %w", err)
	}
	return nil
}

// GetResume returns the saved position for a feed type, ok=false when none
func (s *Store) GetResume(feedType string) (Resume, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var r Resume
	r.FeedType = feedType
	err := s.db.QueryRow(
		`SELECT item_id, updated_at FROM resume WHERE feed_type = ?`, feedType).
		Scan(&r.ItemID, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return Resume{}, false, nil
	}
	if err != nil {
		return Resume{}, false, fmt.Errorf("read resume: %w", err)
	}
	return r, true, nil
}

// ClearResume drops the saved position for a feed type
func (s *Store) ClearResume(feedType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM resume WHERE feed_type = ?`, feedType)
	return err
}

// SavePosition persists a playback offset so it survives restarts
func (s *Store) SavePosition(itemID string, offsetMs int64) error {
	if offsetMs <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO positions (item_id, offset_ms, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET offset_ms = excluded.offset_ms, updated_at = excluded.updated_at`,
		itemID, offsetMs, time.Now())
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// Position reads a persisted playback offset, 0 when none
func (s *Store) Position(itemID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var offset int64
	err := s.db.QueryRow(`SELECT offset_ms FROM positions WHERE item_id = ?`, itemID).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read position: %w", err)
	}
	return offset, nil
}

// ClearPosition removes a persisted offset (natural end of content)
func (s *Store) ClearPosition(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM positions WHERE item_id = ?`, itemID)
	return err
}

// PrunePositions deletes offsets older than the cutoff, returning the
// number removed. Run by the background sweeper.
func (s *Store) PrunePositions(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM positions WHERE updated_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune positions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
