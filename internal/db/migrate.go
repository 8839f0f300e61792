// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationStep pairs a schema version with its up/down SQL.
type migrationStep struct {
	version     int
	description string
	up          string
	down        string
}

// migrations is the ordered list of schema migrations. Append only;
// never edit an applied step (checksums are recorded on apply).
var migrations = []migrationStep{
	{
		version:     1,
		description: "initial_schema",
		up: `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			remote_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			saved_at INTEGER NOT NULL CHECK(saved_at > 0),
			synced INTEGER NOT NULL DEFAULT 0,
			synced_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_records_synced ON records(synced);

		CREATE TABLE IF NOT EXISTS pending_mutations (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			data TEXT NOT NULL,
			retries INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			next_retry_at INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL CHECK(created_at > 0)
		);
		CREATE INDEX IF NOT EXISTS idx_pending_mutations_status ON pending_mutations(status);

		CREATE TABLE IF NOT EXISTS sync_log (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			action TEXT NOT NULL,
			timestamp INTEGER NOT NULL CHECK(timestamp > 0)
		);
		CREATE INDEX IF NOT EXISTS idx_sync_log_timestamp ON sync_log(timestamp DESC);
		`,
		down: `
		DROP TABLE IF EXISTS sync_log;
		DROP TABLE IF EXISTS pending_mutations;
		DROP TABLE IF EXISTS records;
		`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedVersions := make(map[int]bool)
	for _, mig := range applied {
		appliedVersions[mig.Version] = true
	}

	for _, step := range migrations {
		if appliedVersions[step.version] {
			continue
		}
		if err := m.applyStep(step); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", step.version, err)
		}
	}

	return nil
}

// applyStep applies a single migration inside a transaction.
func (m *Migrator) applyStep(step migrationStep) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(step.up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	hash := sha256.Sum256([]byte(step.up))
	checksum := hex.EncodeToString(hash[:])
	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, step.version, time.Now().Unix(), step.description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Down rolls back the last applied migration.
func (m *Migrator) Down() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var step *migrationStep
	for i := range migrations {
		if migrations[i].version == current {
			step = &migrations[i]
			break
		}
	}
	if step == nil {
		return fmt.Errorf("no rollback migration found for version %d", current)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(step.down); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}
