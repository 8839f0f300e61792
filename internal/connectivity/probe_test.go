package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// flipCheck is a CheckFunc whose result can be changed between ticks.
type flipCheck struct {
	mu     sync.Mutex
	result bool
}

func (f *flipCheck) set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = v
}

func (f *flipCheck) check(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

func TestProbeDrivesMonitorOffline(t *testing.T) {
	monitor := NewMonitor(true)
	check := &flipCheck{result: false}

	probe := NewProbe(monitor, check.check, &ProbeConfig{Interval: 5 * time.Millisecond})
	probe.Start(context.Background())
	defer probe.Stop()

	assert.Eventually(t, func() bool { return !monitor.IsOnline() },
		time.Second, time.Millisecond, "probe flips the monitor offline")
}

func TestProbeDetectsReconnect(t *testing.T) {
	monitor := NewMonitor(false)
	check := &flipCheck{result: false}

	reconnects := make(chan bool, 1)
	monitor.Subscribe(func(online bool) {
		if online {
			select {
			case reconnects <- true:
			default:
			}
		}
	})

	probe := NewProbe(monitor, check.check, &ProbeConfig{Interval: 5 * time.Millisecond})
	probe.Start(context.Background())
	defer probe.Stop()

	check.set(true)

	select {
	case <-reconnects:
	case <-time.After(time.Second):
		t.Fatal("reconnect transition not observed")
	}
	assert.True(t, monitor.IsOnline())
}

func TestProbeStopIsIdempotent(t *testing.T) {
	monitor := NewMonitor(false)
	probe := NewProbe(monitor, func(context.Context) bool { return true }, nil)

	probe.Start(context.Background())
	probe.Stop()
	probe.Stop()
}
