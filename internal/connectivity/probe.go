package connectivity

import (
	"context"
	"sync"
	"time"
)

// CheckFunc reports whether the backend is currently reachable.
type CheckFunc func(ctx context.Context) bool

// ProbeConfig holds probe configuration.
type ProbeConfig struct {
	// Interval between reachability checks (default: 30 seconds).
	Interval time.Duration
	// CheckTimeout bounds a single check (default: 10 seconds).
	CheckTimeout time.Duration
}

// DefaultProbeConfig returns the default probe configuration.
func DefaultProbeConfig() *ProbeConfig {
	return &ProbeConfig{
		Interval:     30 * time.Second,
		CheckTimeout: 10 * time.Second,
	}
}

// Probe periodically checks backend reachability and drives the
// monitor's online state, so long-running processes recover the
// reconnect signal without a host runtime reporting transitions.
type Probe struct {
	monitor *Monitor
	check   CheckFunc
	cfg     *ProbeConfig

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

// NewProbe creates a Probe driving monitor from check. A nil config
// uses DefaultProbeConfig.
func NewProbe(monitor *Monitor, check CheckFunc, cfg *ProbeConfig) *Probe {
	if cfg == nil {
		cfg = DefaultProbeConfig()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeConfig().Interval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultProbeConfig().CheckTimeout
	}

	return &Probe{
		monitor: monitor,
		check:   check,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic checks. The first check runs immediately so
// the monitor reflects real reachability at startup.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop stops the probe and waits for the loop to exit.
func (p *Probe) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

func (p *Probe) loop(ctx context.Context) {
	defer p.wg.Done()

	p.runCheck(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runCheck(ctx)
		}
	}
}

func (p *Probe) runCheck(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.cfg.CheckTimeout)
	defer cancel()
	p.monitor.SetOnline(p.check(checkCtx))
}
