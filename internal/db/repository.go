// Package db provides CRUD repository operations for the condor collections.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/condorhq/condor/internal/models"
	"github.com/condorhq/condor/internal/uuid"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = sql.ErrNoRows

// Repository provides CRUD operations for all condor collections.
// Frequently used queries go through a prepared statement cache to
// avoid repeated SQL parsing.
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying database handle.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Record Operations
// =====================================================

// CreateRecord persists a new record. An ID is assigned when the
// caller did not supply one; a supplied ID must be a UUID v4. SavedAt
// is stamped when zero.
func (r *Repository) CreateRecord(rec *models.Record) error {
	if rec.ID == "" {
		rec.ID = models.UUID(uuid.New())
	} else if err := uuid.Validate(rec.ID.String()); err != nil {
		return fmt.Errorf("invalid record id: %w", err)
	}
	if rec.SavedAt == 0 {
		rec.SavedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO records (id, remote_id, payload, saved_at, synced, synced_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, rec.ID, rec.RemoteID, rec.Payload,
		rec.SavedAt, rec.Synced, rec.SyncedAt)
	return err
}

// GetRecord retrieves a record by ID.
func (r *Repository) GetRecord(id string) (*models.Record, error) {
	query := `
	SELECT id, remote_id, payload, saved_at, synced, synced_at
	FROM records WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var rec models.Record
	err = stmt.QueryRow(id).Scan(
		&rec.ID, &rec.RemoteID, &rec.Payload, &rec.SavedAt, &rec.Synced, &rec.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListPendingRecords returns all records with synced = false.
// No ordering is guaranteed.
func (r *Repository) ListPendingRecords() ([]*models.Record, error) {
	query := `
	SELECT id, remote_id, payload, saved_at, synced, synced_at
	FROM records WHERE synced = 0
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.ID, &rec.RemoteID, &rec.Payload,
			&rec.SavedAt, &rec.Synced, &rec.SyncedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountPendingRecords returns the number of records with synced = false.
func (r *Repository) CountPendingRecords() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM records WHERE synced = 0").Scan(&count)
	return count, err
}

// MarkSynced sets synced/synced_at/remote_id on a record and appends
// the sync-log entry in the same transaction, so a reader never
// observes one without the other. remote_id is assigned at most once:
// a non-empty existing value is kept.
func (r *Repository) MarkSynced(recordID, remoteID string, now time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
	UPDATE records
	SET synced = 1,
	    synced_at = ?,
	    remote_id = CASE WHEN remote_id = '' THEN ? ELSE remote_id END
	WHERE id = ?
	`, now.Unix(), remoteID, recordID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(`
	INSERT INTO sync_log (id, record_id, action, timestamp)
	VALUES (?, ?, ?, ?)
	`, uuid.New(), recordID, models.SyncActionSynced, now.Unix())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteSyncedBefore deletes records that are synced and whose
// synced_at is older than cutoff. Un-synced records are never touched.
func (r *Repository) DeleteSyncedBefore(cutoff time.Time) (int, error) {
	res, err := r.db.Exec(`
	DELETE FROM records WHERE synced = 1 AND synced_at > 0 AND synced_at < ?
	`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// =====================================================
// PendingMutation Operations
// =====================================================

// CreateMutation enqueues a pending mutation. A supplied ID must be a
// UUID v4.
func (r *Repository) CreateMutation(m *models.PendingMutation) error {
	if m.ID == "" {
		m.ID = models.UUID(uuid.New())
	} else if err := uuid.Validate(m.ID.String()); err != nil {
		return fmt.Errorf("invalid mutation id: %w", err)
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().Unix()
	}
	if m.Status == "" {
		m.Status = models.MutationStatusPending
	}

	query := `
	INSERT INTO pending_mutations (id, record_id, type, endpoint, method, data, retries,
		max_retries, next_retry_at, status, last_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, m.ID, m.RecordID, m.Type, m.Endpoint, m.Method, string(m.Data),
		m.Retries, m.MaxRetries, m.NextRetryAt, m.Status, m.LastError, m.CreatedAt)
	return err
}

// ListMutations returns all queued mutations regardless of status.
func (r *Repository) ListMutations() ([]*models.PendingMutation, error) {
	return r.queryMutations(`
	SELECT id, record_id, type, endpoint, method, data, retries, max_retries,
		next_retry_at, status, last_error, created_at
	FROM pending_mutations
	`)
}

// ListPendingMutations returns mutations not yet successfully replayed
// and not dead-lettered.
func (r *Repository) ListPendingMutations() ([]*models.PendingMutation, error) {
	return r.queryMutations(`
	SELECT id, record_id, type, endpoint, method, data, retries, max_retries,
		next_retry_at, status, last_error, created_at
	FROM pending_mutations WHERE status = 'pending'
	`)
}

func (r *Repository) queryMutations(query string, args ...interface{}) ([]*models.PendingMutation, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mutations []*models.PendingMutation
	for rows.Next() {
		var m models.PendingMutation
		var data string
		if err := rows.Scan(&m.ID, &m.RecordID, &m.Type, &m.Endpoint, &m.Method, &data,
			&m.Retries, &m.MaxRetries, &m.NextRetryAt, &m.Status,
			&m.LastError, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Data = []byte(data)
		mutations = append(mutations, &m)
	}
	return mutations, rows.Err()
}

// UpdateMutation persists retry bookkeeping for a mutation.
func (r *Repository) UpdateMutation(m *models.PendingMutation) error {
	res, err := r.db.Exec(`
	UPDATE pending_mutations
	SET retries = ?, next_retry_at = ?, status = ?, last_error = ?
	WHERE id = ?
	`, m.Retries, m.NextRetryAt, m.Status, m.LastError, m.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMutation removes a mutation from the queue. Deleting a
// non-existent id is not an error.
func (r *Repository) DeleteMutation(id string) error {
	_, err := r.db.Exec("DELETE FROM pending_mutations WHERE id = ?", id)
	return err
}

// ResetFailedMutations returns dead-lettered mutations to the pending
// state for another round of replays. Returns the number reset.
func (r *Repository) ResetFailedMutations(now time.Time) (int, error) {
	res, err := r.db.Exec(`
	UPDATE pending_mutations
	SET status = 'pending', retries = 0, next_retry_at = ?, last_error = ''
	WHERE status = 'failed'
	`, now.Unix())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// CountPendingMutations returns the number of mutations with status pending.
func (r *Repository) CountPendingMutations() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM pending_mutations WHERE status = 'pending'").Scan(&count)
	return count, err
}

// =====================================================
// SyncLog Operations
// =====================================================

// ListSyncLog returns the most recent limit entries, newest first.
func (r *Repository) ListSyncLog(limit int) ([]*models.SyncLogEntry, error) {
	rows, err := r.db.Query(`
	SELECT id, record_id, action, timestamp
	FROM sync_log ORDER BY timestamp DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		var e models.SyncLogEntry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Action, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
