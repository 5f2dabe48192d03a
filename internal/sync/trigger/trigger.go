// Package trigger starts sync passes in the background: immediately when
// connectivity returns and on a fallback interval while online.
package trigger

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmeireles/writeback/internal/logging"
	"github.com/dmeireles/writeback/internal/netmon"
	"github.com/dmeireles/writeback/internal/sync"
)

// DefaultInterval is the fallback sync cadence while online. Connectivity
// transitions fire a pass immediately regardless of the interval.
const DefaultInterval = 5 * time.Minute

// Config tunes a Trigger. Zero Interval selects DefaultInterval.
type Config struct {
	Interval time.Duration
	Logger   *zerolog.Logger
}

// Trigger drives an engine from connectivity transitions and a periodic
// ticker. It never waits for a pass to finish; overlap protection lives in
// the engine itself.
type Trigger struct {
	engine   sync.Synchronizer
	monitor  netmon.Monitor
	interval time.Duration
	logger   zerolog.Logger

	stopCh    chan struct{}
	wg        stdsync.WaitGroup
	mu        stdsync.Mutex
	isRunning bool
	cancelSub func()
}

// New creates a Trigger wiring monitor transitions to engine passes.
func New(engine sync.Synchronizer, monitor netmon.Monitor, cfg *Config) *Trigger {
	if cfg == nil {
		cfg = &Config{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := logging.Component("trigger")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Trigger{
		engine:   engine,
		monitor:  monitor,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to connectivity transitions and launches the periodic
// loop. If the monitor is already online, one pass fires right away to drain
// whatever accumulated while the process was down.
func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = true
	t.cancelSub = t.monitor.Subscribe(func(online bool) {
		if !online || !t.running() {
			return
		}
		t.fire(ctx, "connectivity restored")
	})
	t.mu.Unlock()

	if t.monitor.Online() {
		t.fire(ctx, "startup")
	}

	t.wg.Add(1)
	go t.loop(ctx)

	t.logger.Info().Dur("interval", t.interval).Msg("sync trigger started")
}

// Stop unsubscribes from the monitor and halts the periodic loop.
func (t *Trigger) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	cancel := t.cancelSub
	t.cancelSub = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(t.stopCh)
	t.wg.Wait()

	t.logger.Info().Msg("sync trigger stopped")
}

func (t *Trigger) running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

func (t *Trigger) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if !t.monitor.Online() {
				continue
			}
			t.fire(ctx, "interval")
		}
	}
}

// fire starts a pass without waiting for it. A pass already in flight makes
// this a no-op beyond callback registration, which we do not use here.
func (t *Trigger) fire(ctx context.Context, reason string) {
	t.logger.Debug().Str("reason", reason).Msg("starting sync pass")
	go t.engine.Synchronize(ctx)
}
