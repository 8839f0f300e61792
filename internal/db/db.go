// Package db provides the local persistent store: SQLite connection
// management, schema migrations and repository operations for the
// condor collections.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps sql.DB with condor-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens the condor SQLite database under dataDir.
// The database is opened with:
// - WAL mode for concurrent reads/writes
// - foreign key constraints enabled
// - a single writer connection (SQLite limitation)
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "condor.db")

	// modernc.org/sqlite is pure Go, no CGO
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := configure(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn}, nil
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	if err := configure(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn}, nil
}

func configure(conn *sql.DB) error {
	// SQLite doesn't support multiple writers
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
