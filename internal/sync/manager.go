// Package sync provides offline-first durability for domain records
// and eventual delivery to the portal backend once connectivity
// returns.
//
// Records are written to the local store first; mutations that cannot
// be confirmed remotely are queued in an outbox and replayed by
// SyncAll. Offline is an expected condition, never an error.
package sync

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/condorhq/condor/internal/db"
	apperrors "github.com/condorhq/condor/internal/errors"
	"github.com/condorhq/condor/internal/logging"
	"github.com/condorhq/condor/internal/models"
	"github.com/condorhq/condor/internal/remote"
	"github.com/condorhq/condor/internal/uuid"
)

// Pusher is the remote HTTP collaborator.
type Pusher interface {
	Push(ctx context.Context, endpoint, method string, data []byte) (*remote.PushResult, error)
}

// Connectivity is the host-driven online/offline signal.
type Connectivity interface {
	IsOnline() bool
}

// Config holds manager tunables.
type Config struct {
	// Endpoint is the creation endpoint for records (e.g. "/api/reports").
	Endpoint string
	// MaxRetries is the replay budget before a mutation is dead-lettered.
	MaxRetries int
	// SyncLogLimit caps the entries returned by Status.
	SyncLogLimit int
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:     "/api/reports",
		MaxRetries:   5,
		SyncLogLimit: 10,
	}
}

// SyncStatus aggregates pending counts and recent sync-log entries for
// observability and UI display.
type SyncStatus struct {
	PendingRecords    int                    `json:"pending_records"`
	PendingOperations int                    `json:"pending_operations"`
	LastSyncLog       []*models.SyncLogEntry `json:"last_sync_log"`
}

// Manager is the offline sync manager. Construct it once at
// application start and inject it wherever needed; it holds no global
// state.
type Manager struct {
	repo   *db.Repository
	remote Pusher
	conn   Connectivity
	cfg    *Config

	// Concurrent SyncAll invocations coalesce into a single run so
	// a mutation is never replayed twice by overlapping calls.
	group singleflight.Group

	now func() time.Time
}

// NewManager creates a Manager. A nil cfg uses DefaultConfig.
func NewManager(repo *db.Repository, pusher Pusher, conn Connectivity, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.SyncLogLimit <= 0 {
		cfg.SyncLogLimit = DefaultConfig().SyncLogLimit
	}

	return &Manager{
		repo:   repo,
		remote: pusher,
		conn:   conn,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SaveRecord persists a record locally, stamping SavedAt and
// Synced=false. No network call is made: local durability never
// depends on connectivity. Fails only on local storage errors.
func (m *Manager) SaveRecord(rec *models.Record) (*models.Record, error) {
	rec.Synced = false
	rec.SyncedAt = 0
	rec.SavedAt = m.now().Unix()

	if err := m.repo.CreateRecord(rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to save record locally", err)
	}

	logging.Debug("Record saved locally", map[string]interface{}{
		"record_id": rec.ID.String(),
	})

	return rec, nil
}

// SubmitRecord saves a record locally and then tries to confirm it
// remotely. When online, an immediate push is attempted; on success
// the record is marked synced. When offline, or when the push fails,
// a pending mutation is enqueued for later replay.
//
// The record is never lost: it either ends up synced, or pending with
// an outbox entry. Only local storage failures are returned as errors.
func (m *Manager) SubmitRecord(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if _, err := m.SaveRecord(rec); err != nil {
		return nil, err
	}

	if m.conn.IsOnline() {
		result, err := m.remote.Push(ctx, m.cfg.Endpoint, "", m.pushBody(rec))
		if err == nil {
			if err := m.MarkRecordSynced(rec.ID.String(), result.RemoteID); err != nil {
				// The record stays pending and the next SyncAll
				// re-pushes it. Delivery is at-least-once.
				logging.Warn("Immediate push succeeded but local update failed", map[string]interface{}{
					"record_id": rec.ID.String(),
					"error":     err.Error(),
				})
				return rec, nil
			}
			rec.Synced = true
			rec.SyncedAt = m.now().Unix()
			rec.RemoteID = result.RemoteID
			return rec, nil
		}

		logging.Info("Immediate push failed, queueing for replay", map[string]interface{}{
			"record_id": rec.ID.String(),
			"error":     err.Error(),
		})
	}

	if err := m.enqueueMutation(rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// enqueueMutation writes the outbox entry for a record that could not
// be confirmed remotely.
func (m *Manager) enqueueMutation(rec *models.Record) error {
	mutation := &models.PendingMutation{
		ID:          models.UUID(uuid.New()),
		RecordID:    rec.ID,
		Type:        models.MutationCreateRecord,
		Endpoint:    m.cfg.Endpoint,
		Method:      "POST",
		Data:        m.pushBody(rec),
		MaxRetries:  m.cfg.MaxRetries,
		NextRetryAt: m.now().Unix(),
		Status:      models.MutationStatusPending,
		CreatedAt:   m.now().Unix(),
	}

	if err := m.repo.CreateMutation(mutation); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to enqueue pending mutation", err)
	}

	logging.Debug("Mutation queued", map[string]interface{}{
		"mutation_id": mutation.ID.String(),
		"record_id":   rec.ID.String(),
	})

	return nil
}

// pushBody builds the JSON body sent to the remote endpoint for a record.
func (m *Manager) pushBody(rec *models.Record) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"client_id": rec.ID.String(),
		"payload":   json.RawMessage(payloadOrNull(rec.Payload)),
		"saved_at":  rec.SavedAt,
	})
	return body
}

// payloadOrNull guards against payloads that are not valid JSON; they
// are re-encoded as a JSON string instead of corrupting the body.
func payloadOrNull(payload string) []byte {
	if json.Valid([]byte(payload)) && payload != "" {
		return []byte(payload)
	}
	quoted, _ := json.Marshal(payload)
	return quoted
}

// PendingRecords returns all locally stored records with synced=false,
// in unspecified order.
func (m *Manager) PendingRecords() ([]*models.Record, error) {
	records, err := m.repo.ListPendingRecords()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending records", err)
	}
	return records, nil
}

// PendingMutations returns all queued mutations not yet successfully
// replayed.
func (m *Manager) PendingMutations() ([]*models.PendingMutation, error) {
	mutations, err := m.repo.ListPendingMutations()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending mutations", err)
	}
	return mutations, nil
}

// MarkRecordSynced sets synced/syncedAt/remoteId on the record and
// appends the sync-log entry. Both writes happen in one local
// transaction, so a reader never observes one without the other.
func (m *Manager) MarkRecordSynced(recordID, remoteID string) error {
	err := m.repo.MarkSynced(recordID, remoteID, m.now())
	if err == db.ErrNotFound {
		return apperrors.New(apperrors.ErrNotFound, "record not found: "+recordID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark record synced", err)
	}
	return nil
}

// RemovePendingMutation deletes a mutation from the queue. Removing a
// non-existent id is not an error.
func (m *Manager) RemovePendingMutation(mutationID string) error {
	if err := m.repo.DeleteMutation(mutationID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove pending mutation", err)
	}
	return nil
}

// SyncAll drains pending records and mutations against the remote
// collaborator. It is a no-op returning false while offline, so a
// known-offline device burns no retry budget.
//
// Per-item failures are isolated: one record's failure never aborts
// the rest of the batch. The overall result is false only when the
// pending items cannot even be enumerated. Overlapping invocations
// coalesce into a single run.
func (m *Manager) SyncAll(ctx context.Context) bool {
	v, _, _ := m.group.Do("sync-all", func() (interface{}, error) {
		return m.syncAll(ctx), nil
	})
	return v.(bool)
}

func (m *Manager) syncAll(ctx context.Context) bool {
	if !m.conn.IsOnline() {
		logging.Debug("SyncAll skipped: offline")
		return false
	}

	mutations, err := m.repo.ListPendingMutations()
	if err != nil {
		logging.Error("SyncAll failed to enumerate pending mutations", err)
		return false
	}

	records, err := m.repo.ListPendingRecords()
	if err != nil {
		logging.Error("SyncAll failed to enumerate pending records", err)
		return false
	}

	// Records with a queued mutation are delivered by the replay loop;
	// pushing them here too would duplicate the create.
	claimed := make(map[models.UUID]bool, len(mutations))
	for _, mut := range mutations {
		if mut.RecordID != "" {
			claimed[mut.RecordID] = true
		}
	}

	synced := 0
	for _, rec := range records {
		if claimed[rec.ID] {
			continue
		}
		if m.syncRecord(ctx, rec) {
			synced++
		}
	}

	replayed := 0
	now := m.now()
	for _, mut := range mutations {
		if !mut.Ready(now) {
			continue
		}
		if m.replayMutation(ctx, mut) {
			replayed++
		}
	}

	logging.Info("SyncAll finished", map[string]interface{}{
		"records_synced":     synced,
		"mutations_replayed": replayed,
	})

	return true
}

// syncRecord pushes one pending record and marks it synced. Returns
// true on success; failures are logged and swallowed.
func (m *Manager) syncRecord(ctx context.Context, rec *models.Record) bool {
	result, err := m.remote.Push(ctx, m.cfg.Endpoint, "", m.pushBody(rec))
	if err != nil {
		logging.Warn("Record push failed, leaving pending", map[string]interface{}{
			"record_id": rec.ID.String(),
			"error":     err.Error(),
		})
		return false
	}

	if err := m.MarkRecordSynced(rec.ID.String(), result.RemoteID); err != nil {
		// Record deleted between enumeration and update (e.g. by a
		// concurrent cleanup) is benign.
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return true
		}
		logging.Warn("Failed to mark record synced", map[string]interface{}{
			"record_id": rec.ID.String(),
			"error":     err.Error(),
		})
		return false
	}

	return true
}

// replayMutation replays one queued mutation. On success the entry is
// removed and its record, if any, marked synced. On failure retry
// bookkeeping is updated and the entry is dead-lettered once the
// budget runs out.
func (m *Manager) replayMutation(ctx context.Context, mut *models.PendingMutation) bool {
	result, err := m.remote.Push(ctx, mut.Endpoint, mut.Method, mut.Data)
	if err != nil {
		m.recordReplayFailure(mut, err)
		return false
	}

	if mut.RecordID != "" {
		if err := m.MarkRecordSynced(mut.RecordID.String(), result.RemoteID); err != nil &&
			!apperrors.Is(err, apperrors.ErrNotFound) {
			logging.Warn("Replay succeeded but record update failed", map[string]interface{}{
				"mutation_id": mut.ID.String(),
				"record_id":   mut.RecordID.String(),
				"error":       err.Error(),
			})
			return false
		}
	}

	if err := m.RemovePendingMutation(mut.ID.String()); err != nil {
		logging.Warn("Failed to remove replayed mutation", map[string]interface{}{
			"mutation_id": mut.ID.String(),
			"error":       err.Error(),
		})
		return false
	}

	return true
}

// recordReplayFailure increments the retry count with exponential
// backoff and dead-letters the mutation once MaxRetries is reached.
func (m *Manager) recordReplayFailure(mut *models.PendingMutation, cause error) {
	mut.Retries++
	mut.LastError = cause.Error()
	mut.NextRetryAt = m.now().Unix() + backoffSeconds(mut.Retries)

	if mut.Retries >= mut.MaxRetries {
		mut.Status = models.MutationStatusFailed
		logging.Warn("Mutation dead-lettered after max retries", map[string]interface{}{
			"mutation_id": mut.ID.String(),
			"retries":     mut.Retries,
			"queued_at":   mut.CreatedAtTime().Format(time.RFC3339),
			"error":       cause.Error(),
		})
	} else {
		logging.Info("Mutation replay failed, will retry", map[string]interface{}{
			"mutation_id": mut.ID.String(),
			"retries":     mut.Retries,
			"transient":   remote.IsTransient(cause),
			"error":       cause.Error(),
		})
	}

	if err := m.repo.UpdateMutation(mut); err != nil && err != db.ErrNotFound {
		logging.Error("Failed to persist mutation retry state", err, map[string]interface{}{
			"mutation_id": mut.ID.String(),
		})
	}
}

// backoffSeconds computes the exponential backoff delay in seconds.
// Formula: 2^retries * 60, capped at 3600 seconds (1 hour).
func backoffSeconds(retries int) int64 {
	backoff := int64(1) << uint(retries)
	backoff *= 60

	maxBackoff := int64(3600)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	return backoff
}

// RetryFailedMutations resets dead-lettered mutations to pending for
// another round of replays. Returns the number reset.
func (m *Manager) RetryFailedMutations() (int, error) {
	count, err := m.repo.ResetFailedMutations(m.now())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to reset failed mutations", err)
	}
	if count > 0 {
		logging.Info("Reset failed mutations for retry", map[string]interface{}{
			"count": count,
		})
	}
	return count, nil
}

// Status is a pure read aggregating pending counts and the most recent
// sync-log entries.
func (m *Manager) Status() (*SyncStatus, error) {
	pendingRecords, err := m.repo.CountPendingRecords()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to count pending records", err)
	}

	pendingMutations, err := m.repo.CountPendingMutations()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to count pending mutations", err)
	}

	log, err := m.repo.ListSyncLog(m.cfg.SyncLogLimit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read sync log", err)
	}

	return &SyncStatus{
		PendingRecords:    pendingRecords,
		PendingOperations: pendingMutations,
		LastSyncLog:       log,
	}, nil
}

// CleanupOldData deletes synced records whose syncedAt is older than
// daysOld days. Un-synced records are never deleted regardless of age.
// Returns the count removed.
func (m *Manager) CleanupOldData(daysOld int) (int, error) {
	cutoff := m.now().Add(-time.Duration(daysOld) * 24 * time.Hour)

	removed, err := m.repo.DeleteSyncedBefore(cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to clean up old records", err)
	}

	if removed > 0 {
		logging.Info("Old synced records removed", map[string]interface{}{
			"count":    removed,
			"days_old": daysOld,
		})
	}

	return removed, nil
}
