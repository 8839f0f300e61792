// Package scheduler provides background sync scheduling: periodic
// drains of the pending queue while online, plus an immediate sync on
// reconnect.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/condorhq/condor/internal/logging"
)

// Syncer drains pending records and mutations.
type Syncer interface {
	SyncAll(ctx context.Context) bool
}

// ConnectivitySource exposes the online signal and its transitions.
type ConnectivitySource interface {
	IsOnline() bool
	Subscribe(fn func(online bool))
}

// Config holds scheduler configuration.
type Config struct {
	// SyncInterval is how often to sync while online (default: 15 minutes).
	SyncInterval time.Duration
	// SyncTimeout bounds a single sync run (default: 5 minutes).
	SyncTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 15 * time.Minute,
		SyncTimeout:  5 * time.Minute,
	}
}

// Scheduler runs background sync operations.
type Scheduler struct {
	syncer       Syncer
	conn         ConnectivitySource
	syncInterval time.Duration
	syncTimeout  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu           sync.RWMutex
	isRunning    bool
	lastSyncTime time.Time
}

// NewScheduler creates a Scheduler. A nil config uses DefaultConfig.
func NewScheduler(syncer Syncer, conn ConnectivitySource, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultConfig().SyncInterval
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = DefaultConfig().SyncTimeout
	}

	return &Scheduler{
		syncer:       syncer,
		conn:         conn,
		syncInterval: config.SyncInterval,
		syncTimeout:  config.SyncTimeout,
		stopCh:       make(chan struct{}),
	}
}

// Start starts the background loop and subscribes to connectivity
// transitions so a reconnect triggers an immediate sync.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.conn.Subscribe(func(online bool) {
		if online && s.IsRunning() {
			go s.runSync(ctx, "reconnect")
		}
	})

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"interval": s.syncInterval.String(),
	})
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped")
}

// loop runs the periodic sync while online.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.conn.IsOnline() {
				continue
			}
			s.runSync(ctx, "periodic")
		}
	}
}

// runSync executes one bounded sync run. Reentrancy is handled by the
// manager itself (overlapping runs coalesce), so multiple triggers are
// safe.
func (s *Scheduler) runSync(ctx context.Context, trigger string) {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	ok := s.syncer.SyncAll(syncCtx)
	if !ok {
		logging.Debug("Scheduled sync skipped or failed", map[string]interface{}{
			"trigger": trigger,
		})
		return
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Debug("Scheduled sync completed", map[string]interface{}{
		"trigger": trigger,
	})
}

// TriggerSync requests an immediate sync. Returns the sync result.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()
	ok := s.syncer.SyncAll(syncCtx)
	if ok {
		s.mu.Lock()
		s.lastSyncTime = time.Now()
		s.mu.Unlock()
	}
	return ok
}

// LastSyncTime returns when the last successful sync finished, or the
// zero time if none has.
func (s *Scheduler) LastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncTime
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
