package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps the local SQLite database: stored credentials, finalized session
// summaries, and the durable participant-notification outbox.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the SQLite database in the given directory.
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "stylecast.db")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	// Credentials for the messaging transport and wardrobe API.
	// Single row keyed by id=1.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			token      TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			user_name  TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	// Finalized live-session summaries.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_summaries (
			call_id      TEXT NOT NULL,
			wardrobe_id  TEXT DEFAULT '',
			total_items  INTEGER DEFAULT 0,
			finalized_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session summaries table: %w", err)
	}

	// Durable participant-notification outbox. Rows stay until delivered.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS notify_outbox (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id     TEXT NOT NULL,
			action      TEXT NOT NULL,
			item_json   TEXT NOT NULL,
			wardrobe_id TEXT NOT NULL,
			attempts    INTEGER DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create outbox table: %w", err)
	}

	// Migration: add attempts column if missing (existing databases)
	db.Exec(`ALTER TABLE notify_outbox ADD COLUMN attempts INTEGER DEFAULT 0`)

	return &DB{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}
