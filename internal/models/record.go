// Package models provides data model definitions for the condor core.
package models

import (
	"database/sql/driver"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Record represents a locally persisted domain record (e.g. a report).
// A record is created locally first and confirmed against the remote
// system later; RemoteID stays empty until the first successful push.
type Record struct {
	ID       UUID   `db:"id" json:"id"`
	RemoteID string `db:"remote_id" json:"remote_id,omitempty"`
	Payload  string `db:"payload" json:"payload"`
	SavedAt  int64  `db:"saved_at" json:"saved_at"`
	Synced   bool   `db:"synced" json:"synced"`
	SyncedAt int64  `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for Record.
func (Record) TableName() string {
	return "records"
}

// SavedAtTime returns the SavedAt as time.Time.
func (r *Record) SavedAtTime() time.Time {
	return time.Unix(r.SavedAt, 0)
}

// SyncedAtTime returns the SyncedAt as time.Time.
// The zero time is returned for records that never synced.
func (r *Record) SyncedAtTime() time.Time {
	if r.SyncedAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.SyncedAt, 0)
}
