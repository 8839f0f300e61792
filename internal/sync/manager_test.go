package sync

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condorhq/condor/internal/db"
	apperrors "github.com/condorhq/condor/internal/errors"
	"github.com/condorhq/condor/internal/models"
	"github.com/condorhq/condor/internal/remote"
)

// fakePusher records pushes and fails on demand.
type fakePusher struct {
	calls    []pushCall
	failWith error
	// failMatching fails only pushes whose body contains the substring.
	failMatching string
	nextRemoteID int
	// onPush runs after the call is recorded, before the result is
	// decided. Lets tests mutate local state mid-push.
	onPush func()
}

type pushCall struct {
	endpoint string
	method   string
	data     string
}

func (f *fakePusher) Push(_ context.Context, endpoint, method string, data []byte) (*remote.PushResult, error) {
	f.calls = append(f.calls, pushCall{endpoint: endpoint, method: method, data: string(data)})

	if f.onPush != nil {
		f.onPush()
	}

	if f.failWith != nil {
		if f.failMatching == "" || strings.Contains(string(data), f.failMatching) {
			return nil, f.failWith
		}
	}

	f.nextRemoteID++
	return &remote.PushResult{RemoteID: fmt.Sprintf("srv-%d", f.nextRemoteID)}, nil
}

// fakeConn is a static connectivity signal.
type fakeConn struct {
	online bool
}

func (f *fakeConn) IsOnline() bool { return f.online }

func newTestManager(t *testing.T, online bool) (*Manager, *fakePusher, *fakeConn) {
	t.Helper()

	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.NewMigrator(database.DB).Up())

	pusher := &fakePusher{}
	conn := &fakeConn{online: online}
	m := NewManager(db.NewRepository(database.DB), pusher, conn, nil)
	return m, pusher, conn
}

func newRecord(payload string) *models.Record {
	return &models.Record{Payload: payload}
}

func TestSaveRecordIsLocalOnly(t *testing.T) {
	m, pusher, _ := newTestManager(t, true)

	rec, err := m.SaveRecord(newRecord(`{"kind":"report"}`))
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Synced)
	assert.NotZero(t, rec.SavedAt)
	assert.Empty(t, pusher.calls, "SaveRecord must never touch the network")

	pending, err := m.PendingRecords()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)
	assert.False(t, pending[0].Synced)
}

func TestSubmitRecordOffline(t *testing.T) {
	m, pusher, _ := newTestManager(t, false)

	rec, err := m.SubmitRecord(context.Background(), newRecord(`{"n":1}`))
	require.NoError(t, err, "offline is an expected condition, not an error")
	assert.Empty(t, pusher.calls, "no push attempt while offline")

	pending, err := m.PendingRecords()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	require.Len(t, mutations, 1, "exactly one matching outbox entry")
	assert.Equal(t, rec.ID, mutations[0].RecordID)
	assert.Equal(t, models.MutationCreateRecord, mutations[0].Type)
	assert.Equal(t, "POST", mutations[0].Method)
	assert.Zero(t, mutations[0].Retries)
}

func TestSubmitRecordOnlineSuccess(t *testing.T) {
	m, pusher, _ := newTestManager(t, true)

	rec, err := m.SubmitRecord(context.Background(), newRecord(`{"n":2}`))
	require.NoError(t, err)
	require.Len(t, pusher.calls, 1)

	assert.True(t, rec.Synced)
	assert.Equal(t, "srv-1", rec.RemoteID)

	pending, err := m.PendingRecords()
	require.NoError(t, err)
	assert.Empty(t, pending)

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	assert.Empty(t, mutations, "no outbox entry after immediate confirmation")

	status, err := m.Status()
	require.NoError(t, err)
	require.Len(t, status.LastSyncLog, 1)
	assert.Equal(t, rec.ID, status.LastSyncLog[0].RecordID)
	assert.Equal(t, models.SyncActionSynced, status.LastSyncLog[0].Action)
}

func TestSubmitRecordPushFailureFallsBackToOutbox(t *testing.T) {
	m, pusher, _ := newTestManager(t, true)
	pusher.failWith = &remote.Error{StatusCode: 503, Message: "unavailable", Transient: true}

	rec, err := m.SubmitRecord(context.Background(), newRecord(`{"n":3}`))
	require.NoError(t, err, "a failed push falls back to the offline path")
	assert.False(t, rec.Synced)

	pending, err := m.PendingRecords()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, rec.ID, mutations[0].RecordID)
}

func TestSyncAllOfflineFastFail(t *testing.T) {
	m, pusher, _ := newTestManager(t, false)

	_, err := m.SubmitRecord(context.Background(), newRecord(`{"n":4}`))
	require.NoError(t, err)

	assert.False(t, m.SyncAll(context.Background()))
	assert.Empty(t, pusher.calls, "no network calls while offline")
}

// End-to-end: create offline, reconnect, drain.
func TestOfflineSubmitThenReconnectAndDrain(t *testing.T) {
	m, pusher, conn := newTestManager(t, false)

	rec, err := m.SubmitRecord(context.Background(), newRecord(`{"report":"monthly"}`))
	require.NoError(t, err)

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	require.Len(t, mutations, 1)

	// Connectivity restored
	conn.online = true
	assert.True(t, m.SyncAll(context.Background()))
	require.Len(t, pusher.calls, 1, "one replay for one queued mutation")

	mutations, err = m.PendingMutations()
	require.NoError(t, err)
	assert.Empty(t, mutations, "queue drained")

	pending, err := m.PendingRecords()
	require.NoError(t, err)
	assert.Empty(t, pending, "record no longer pending")

	status, err := m.Status()
	require.NoError(t, err)
	assert.Zero(t, status.PendingRecords)
	assert.Zero(t, status.PendingOperations)
	require.Len(t, status.LastSyncLog, 1)
	assert.Equal(t, rec.ID, status.LastSyncLog[0].RecordID)
}

func TestSyncAllPushesPendingRecordsWithoutMutations(t *testing.T) {
	m, pusher, _ := newTestManager(t, true)

	rec, err := m.SaveRecord(newRecord(`{"n":5}`))
	require.NoError(t, err)

	assert.True(t, m.SyncAll(context.Background()))
	require.Len(t, pusher.calls, 1)

	pending, err := m.PendingRecords()
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := m.repo.GetRecord(rec.ID.String())
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, "srv-1", got.RemoteID)
	assert.NotZero(t, got.SyncedAt)
}

// One record's failure must not abort processing of the others.
func TestSyncAllIsolatesPerItemFailures(t *testing.T) {
	m, pusher, _ := newTestManager(t, true)

	bad, err := m.SaveRecord(newRecord(`{"marker":"poison"}`))
	require.NoError(t, err)
	good, err := m.SaveRecord(newRecord(`{"marker":"fine"}`))
	require.NoError(t, err)

	pusher.failWith = &remote.Error{StatusCode: 500, Message: "boom", Transient: true}
	pusher.failMatching = "poison"

	assert.True(t, m.SyncAll(context.Background()), "per-item failures do not fail the batch")
	assert.Len(t, pusher.calls, 2, "both records attempted")

	gotBad, err := m.repo.GetRecord(bad.ID.String())
	require.NoError(t, err)
	assert.False(t, gotBad.Synced, "failed record stays pending")

	gotGood, err := m.repo.GetRecord(good.ID.String())
	require.NoError(t, err)
	assert.True(t, gotGood.Synced)
}

func TestSyncAllRetryBookkeepingAndBackoff(t *testing.T) {
	m, pusher, conn := newTestManager(t, false)

	_, err := m.SubmitRecord(context.Background(), newRecord(`{"n":6}`))
	require.NoError(t, err)

	conn.online = true
	pusher.failWith = &remote.Error{StatusCode: 502, Message: "bad gateway", Transient: true}

	assert.True(t, m.SyncAll(context.Background()))

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, 1, mutations[0].Retries)
	assert.Contains(t, mutations[0].LastError, "bad gateway")
	assert.Greater(t, mutations[0].NextRetryAt, time.Now().Unix(), "backoff pushes the next attempt into the future")

	// A second immediate run must not retry before the backoff expires.
	calls := len(pusher.calls)
	assert.True(t, m.SyncAll(context.Background()))
	assert.Len(t, pusher.calls, calls, "mutation not ready yet")

	// Advance the clock past the backoff window.
	m.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	pusher.failWith = nil

	assert.True(t, m.SyncAll(context.Background()))

	mutations, err = m.PendingMutations()
	require.NoError(t, err)
	assert.Empty(t, mutations)
}

func TestSyncAllDeadLettersAfterMaxRetries(t *testing.T) {
	m, pusher, conn := newTestManager(t, false)
	m.cfg.MaxRetries = 1

	_, err := m.SubmitRecord(context.Background(), newRecord(`{"n":7}`))
	require.NoError(t, err)

	conn.online = true
	pusher.failWith = &remote.Error{StatusCode: 422, Message: "rejected"}

	assert.True(t, m.SyncAll(context.Background()))

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	assert.Empty(t, mutations, "dead-lettered mutation leaves the pending queue")

	all, err := m.repo.ListMutations()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.MutationStatusFailed, all[0].Status)

	// Dead-lettered entries can be brought back explicitly.
	count, err := m.RetryFailedMutations()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mutations, err = m.PendingMutations()
	require.NoError(t, err)
	assert.Len(t, mutations, 1)
}

func TestMarkRecordSyncedAtomicWithLog(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	rec, err := m.SaveRecord(newRecord(`{"n":8}`))
	require.NoError(t, err)

	require.NoError(t, m.MarkRecordSynced(rec.ID.String(), "srv-99"))

	got, err := m.repo.GetRecord(rec.ID.String())
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, "srv-99", got.RemoteID)
	assert.NotZero(t, got.SyncedAt)

	status, err := m.Status()
	require.NoError(t, err)
	require.Len(t, status.LastSyncLog, 1)
	assert.Equal(t, rec.ID, status.LastSyncLog[0].RecordID)
}

func TestMarkRecordSyncedAssignsRemoteIDAtMostOnce(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	rec, err := m.SaveRecord(newRecord(`{"n":9}`))
	require.NoError(t, err)

	require.NoError(t, m.MarkRecordSynced(rec.ID.String(), "srv-first"))
	require.NoError(t, m.MarkRecordSynced(rec.ID.String(), "srv-second"))

	got, err := m.repo.GetRecord(rec.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "srv-first", got.RemoteID)
}

func TestMarkRecordSyncedMissingRecord(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	err := m.MarkRecordSynced("no-such-id", "srv-1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRemovePendingMutationIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	assert.NoError(t, m.RemovePendingMutation("does-not-exist"))
}

func TestCleanupOldDataNeverTouchesPendingRecords(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	// Ancient but never synced.
	old, err := m.SaveRecord(newRecord(`{"age":"old"}`))
	require.NoError(t, err)
	_, err = m.repo.DB().Exec("UPDATE records SET saved_at = ? WHERE id = ?",
		time.Now().Add(-90*24*time.Hour).Unix(), old.ID)
	require.NoError(t, err)

	removed, err := m.CleanupOldData(30)
	require.NoError(t, err)
	assert.Zero(t, removed, "un-synced data is never deleted")

	pending, err := m.PendingRecords()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCleanupOldDataRemovesOldSyncedRecords(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	oldRec, err := m.SaveRecord(newRecord(`{"age":"old"}`))
	require.NoError(t, err)
	freshRec, err := m.SaveRecord(newRecord(`{"age":"fresh"}`))
	require.NoError(t, err)

	require.NoError(t, m.MarkRecordSynced(oldRec.ID.String(), "srv-a"))
	require.NoError(t, m.MarkRecordSynced(freshRec.ID.String(), "srv-b"))

	// Age the first record's sync timestamp past the cutoff.
	_, err = m.repo.DB().Exec("UPDATE records SET synced_at = ? WHERE id = ?",
		time.Now().Add(-60*24*time.Hour).Unix(), oldRec.ID)
	require.NoError(t, err)

	removed, err := m.CleanupOldData(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.repo.GetRecord(oldRec.ID.String())
	assert.Equal(t, db.ErrNotFound, err)

	_, err = m.repo.GetRecord(freshRec.ID.String())
	assert.NoError(t, err)
}

func TestStatusCounts(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	_, err := m.SubmitRecord(context.Background(), newRecord(`{"n":10}`))
	require.NoError(t, err)
	_, err = m.SaveRecord(newRecord(`{"n":11}`))
	require.NoError(t, err)

	status, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, status.PendingRecords)
	assert.Equal(t, 1, status.PendingOperations)
	assert.Empty(t, status.LastSyncLog)
}

// gatePusher blocks inside Push until released, so a test can hold a
// sync run open while more callers arrive.
type gatePusher struct {
	mu      stdsync.Mutex
	started chan struct{}
	release chan struct{}
	once    stdsync.Once
	calls   int
}

func (g *gatePusher) Push(_ context.Context, _, _ string, _ []byte) (*remote.PushResult, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	g.once.Do(func() { close(g.started) })
	<-g.release
	return &remote.PushResult{RemoteID: fmt.Sprintf("srv-%d", n)}, nil
}

func (g *gatePusher) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestSyncAllConcurrentCallersShareOneRun(t *testing.T) {
	m, _, conn := newTestManager(t, false)

	_, err := m.SubmitRecord(context.Background(), newRecord(`{"n":12}`))
	require.NoError(t, err)
	conn.online = true

	gate := &gatePusher{started: make(chan struct{}), release: make(chan struct{})}
	m.remote = gate

	results := make(chan bool, 2)
	go func() { results <- m.SyncAll(context.Background()) }()

	// First run is now blocked inside the push; a second caller must
	// not start another replay of the same mutation.
	<-gate.started
	go func() { results <- m.SyncAll(context.Background()) }()

	close(gate.release)
	assert.True(t, <-results)
	assert.True(t, <-results)
	assert.Equal(t, 1, gate.count(), "one queued mutation replays exactly once across concurrent callers")

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	assert.Empty(t, mutations)
}

func TestSyncAllRecordVanishedMidBatch(t *testing.T) {
	m, pusher, _ := newTestManager(t, true)

	rec, err := m.SaveRecord(newRecord(`{"n":13}`))
	require.NoError(t, err)

	// The record disappears while its push is in flight, e.g. a
	// concurrent cleanup.
	pusher.onPush = func() {
		_, err := m.repo.DB().Exec("DELETE FROM records WHERE id = ?", rec.ID)
		require.NoError(t, err)
	}

	assert.True(t, m.SyncAll(context.Background()), "a vanished record does not fail the batch")
	require.Len(t, pusher.calls, 1)
}

func TestSyncAllMutationRecordVanishedMidReplay(t *testing.T) {
	m, pusher, conn := newTestManager(t, false)

	rec, err := m.SubmitRecord(context.Background(), newRecord(`{"n":14}`))
	require.NoError(t, err)
	conn.online = true

	pusher.onPush = func() {
		_, err := m.repo.DB().Exec("DELETE FROM records WHERE id = ?", rec.ID)
		require.NoError(t, err)
	}

	assert.True(t, m.SyncAll(context.Background()))

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	assert.Empty(t, mutations, "replayed mutation removed even though its record vanished")
}

func TestSubmitRecordNonJSONPayload(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	rec, err := m.SubmitRecord(context.Background(), newRecord("plain text, not json"))
	require.NoError(t, err)

	mutations, err := m.PendingMutations()
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.True(t, strings.Contains(string(mutations[0].Data), "plain text"), "payload preserved in outbox body")
	assert.Equal(t, rec.ID, mutations[0].RecordID)
}
