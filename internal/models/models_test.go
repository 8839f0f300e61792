package models

import (
	"testing"
	"time"
)

func TestUUIDScanAndValue(t *testing.T) {
	var u UUID
	if err := u.Scan([]byte("abc-123")); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if u.String() != "abc-123" {
		t.Errorf("Expected abc-123, got %s", u)
	}

	if err := u.Scan("def-456"); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if u != "def-456" {
		t.Errorf("Expected def-456, got %s", u)
	}

	if err := u.Scan(nil); err != nil {
		t.Fatalf("Scan nil failed: %v", err)
	}
	if u != "" {
		t.Errorf("Expected empty UUID after nil scan, got %s", u)
	}

	v, err := UUID("xyz").Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v != "xyz" {
		t.Errorf("Expected xyz, got %v", v)
	}
}

func TestRecordTimeHelpers(t *testing.T) {
	now := time.Now().Unix()
	r := &Record{SavedAt: now}

	if r.SavedAtTime().Unix() != now {
		t.Errorf("Expected SavedAtTime %d, got %d", now, r.SavedAtTime().Unix())
	}

	if !r.SyncedAtTime().IsZero() {
		t.Error("Expected zero SyncedAtTime for never-synced record")
	}

	r.SyncedAt = now
	if r.SyncedAtTime().Unix() != now {
		t.Errorf("Expected SyncedAtTime %d, got %d", now, r.SyncedAtTime().Unix())
	}
}

func TestPendingMutationReady(t *testing.T) {
	now := time.Now()

	m := &PendingMutation{Status: MutationStatusPending, NextRetryAt: now.Unix()}
	if !m.Ready(now) {
		t.Error("Expected due pending mutation to be ready")
	}

	m.NextRetryAt = now.Add(time.Hour).Unix()
	if m.Ready(now) {
		t.Error("Expected backed-off mutation not to be ready")
	}

	m.NextRetryAt = now.Unix()
	m.Status = MutationStatusFailed
	if m.Ready(now) {
		t.Error("Expected dead-lettered mutation not to be ready")
	}
}

func TestTableNames(t *testing.T) {
	if (Record{}).TableName() != "records" {
		t.Error("Unexpected table name for Record")
	}
	if (PendingMutation{}).TableName() != "pending_mutations" {
		t.Error("Unexpected table name for PendingMutation")
	}
	if (SyncLogEntry{}).TableName() != "sync_log" {
		t.Error("Unexpected table name for SyncLogEntry")
	}
}
