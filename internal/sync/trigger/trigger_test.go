// Package trigger tests for background sync triggering.
package trigger

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/dmeireles/writeback/internal/netmon"
	"github.com/dmeireles/writeback/internal/sync"
)

// mockEngine counts Synchronize calls and signals each one.
type mockEngine struct {
	mu     stdsync.Mutex
	calls  int
	fired  chan struct{}
	status sync.Status
}

func newMockEngine() *mockEngine {
	return &mockEngine{fired: make(chan struct{}, 32), status: sync.StatusIdle}
}

func (m *mockEngine) Enqueue(ctx context.Context, req sync.Request) (string, error) {
	return "", nil
}

func (m *mockEngine) Synchronize(ctx context.Context, callbacks ...func(success bool)) bool {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	m.fired <- struct{}{}
	for _, cb := range callbacks {
		cb(true)
	}
	return true
}

func (m *mockEngine) Status() sync.Status { return m.status }

func (m *mockEngine) LastSync() time.Time { return time.Time{} }

func (m *mockEngine) Depth(ctx context.Context) (int, error) { return 0, nil }

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// waitForPass blocks until the engine reports a pass or the test times out.
func waitForPass(t *testing.T, eng *mockEngine) {
	t.Helper()
	select {
	case <-eng.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("no sync pass fired")
	}
}

// TestTriggerOnConnectivity verifies going online fires a pass immediately.
func TestTriggerOnConnectivity(t *testing.T) {
	eng := newMockEngine()
	mon := netmon.NewManual()
	tr := New(eng, mon, &Config{Interval: time.Hour})

	tr.Start(context.Background())
	defer tr.Stop()

	if eng.callCount() != 0 {
		t.Fatalf("pass fired before any connectivity, calls = %d", eng.callCount())
	}

	mon.SetOnline(true)
	waitForPass(t, eng)

	if got := eng.callCount(); got != 1 {
		t.Errorf("Synchronize called %d times, want 1", got)
	}
}

// TestTriggerIgnoresOffline verifies going offline fires nothing.
func TestTriggerIgnoresOffline(t *testing.T) {
	eng := newMockEngine()
	mon := netmon.NewManual()
	mon.SetOnline(true)
	tr := New(eng, mon, &Config{Interval: time.Hour})

	tr.Start(context.Background())
	defer tr.Stop()

	// Startup fires one pass because the monitor is already online
	waitForPass(t, eng)

	mon.SetOnline(false)

	time.Sleep(50 * time.Millisecond)
	if got := eng.callCount(); got != 1 {
		t.Errorf("Synchronize called %d times after going offline, want 1", got)
	}
}

// TestTriggerStartupPass verifies an already-online monitor drains the queue
// at startup without waiting for a transition.
func TestTriggerStartupPass(t *testing.T) {
	eng := newMockEngine()
	mon := netmon.NewManual()
	mon.SetOnline(true)
	tr := New(eng, mon, &Config{Interval: time.Hour})

	tr.Start(context.Background())
	defer tr.Stop()

	waitForPass(t, eng)
}

// TestTriggerPeriodic verifies the fallback ticker fires passes while online.
func TestTriggerPeriodic(t *testing.T) {
	eng := newMockEngine()
	mon := netmon.NewManual()
	mon.SetOnline(true)
	tr := New(eng, mon, &Config{Interval: 20 * time.Millisecond})

	tr.Start(context.Background())
	defer tr.Stop()

	// Startup pass plus at least two ticker passes
	waitForPass(t, eng)
	waitForPass(t, eng)
	waitForPass(t, eng)
}

// TestTriggerPeriodicSkipsOffline verifies the ticker does nothing while the
// monitor is offline.
func TestTriggerPeriodicSkipsOffline(t *testing.T) {
	eng := newMockEngine()
	mon := netmon.NewManual()
	tr := New(eng, mon, &Config{Interval: 20 * time.Millisecond})

	tr.Start(context.Background())
	defer tr.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := eng.callCount(); got != 0 {
		t.Errorf("Synchronize called %d times while offline, want 0", got)
	}
}

// TestTriggerStop verifies transitions after Stop are ignored.
func TestTriggerStop(t *testing.T) {
	eng := newMockEngine()
	mon := netmon.NewManual()
	tr := New(eng, mon, &Config{Interval: time.Hour})

	tr.Start(context.Background())
	tr.Stop()
	tr.Stop() // second stop is a no-op

	mon.SetOnline(true)

	time.Sleep(50 * time.Millisecond)
	if got := eng.callCount(); got != 0 {
		t.Errorf("Synchronize called %d times after Stop, want 0", got)
	}
}
