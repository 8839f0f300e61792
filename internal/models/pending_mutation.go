// Package models provides data model definitions for the condor core.
package models

import (
	"encoding/json"
	"time"
)

// Mutation type constants.
const (
	MutationCreateRecord = "create-record"
)

// Mutation status constants.
const (
	MutationStatusPending = "pending"
	MutationStatusFailed  = "failed"
)

// PendingMutation represents a remote operation queued while offline,
// replayed on the next sync. Outbox entries are removed once the
// replay succeeds; permanently failing entries are dead-lettered with
// status "failed" after MaxRetries attempts.
type PendingMutation struct {
	ID          UUID            `db:"id" json:"id"`
	RecordID    UUID            `db:"record_id" json:"record_id,omitempty"`
	Type        string          `db:"type" json:"type"`
	Endpoint    string          `db:"endpoint" json:"endpoint"`
	Method      string          `db:"method" json:"method"`
	Data        json.RawMessage `db:"data" json:"data"`
	Retries     int             `db:"retries" json:"retries"`
	MaxRetries  int             `db:"max_retries" json:"max_retries"`
	NextRetryAt int64           `db:"next_retry_at" json:"next_retry_at"`
	Status      string          `db:"status" json:"status"` // pending, failed
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for PendingMutation.
func (PendingMutation) TableName() string {
	return "pending_mutations"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (m *PendingMutation) CreatedAtTime() time.Time {
	return time.Unix(m.CreatedAt, 0)
}

// Ready reports whether the mutation is due for a replay attempt at now.
func (m *PendingMutation) Ready(now time.Time) bool {
	return m.Status == MutationStatusPending && m.NextRetryAt <= now.Unix()
}
