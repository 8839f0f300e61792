// Package models provides data model definitions for the condor core.
package models

import "time"

// Sync log action constants.
const (
	SyncActionSynced = "synced"
)

// SyncLogEntry is an append-only audit record written whenever a
// record transitions to synced. Entries are never updated.
type SyncLogEntry struct {
	ID        UUID   `db:"id" json:"id"`
	RecordID  UUID   `db:"record_id" json:"record_id"`
	Action    string `db:"action" json:"action"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`
}

// TableName returns the table name for SyncLogEntry.
func (SyncLogEntry) TableName() string {
	return "sync_log"
}

// Time returns the Timestamp as time.Time.
func (e *SyncLogEntry) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}
