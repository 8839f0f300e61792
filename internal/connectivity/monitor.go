// Package connectivity tracks the host's online/offline signal and
// notifies subscribers on transitions. The signal is externally driven
// and eventually consistent: a push attempted "while online" can still
// fail due to a race with an actual disconnect.
package connectivity

import (
	"sync"

	"github.com/condorhq/condor/internal/logging"
)

// Monitor holds the current connectivity state.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	listeners []func(online bool)
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// IsOnline returns the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity transition reported by the host
// runtime. Subscribers are notified only on actual state changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})

	for _, fn := range listeners {
		fn(online)
	}
}

// Subscribe registers a callback invoked on every online/offline
// transition. Callbacks run on the caller of SetOnline; long work
// should be dispatched to a goroutine by the subscriber.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}
