// Package netmon tests for connectivity monitoring.
package netmon

import (
	"sync"
	"testing"
)

// TestManualStartsOffline verifies the initial state.
func TestManualStartsOffline(t *testing.T) {
	m := NewManual()
	if m.Online() {
		t.Error("Online() = true for a fresh monitor, want false")
	}
}

// TestManualSetOnline verifies state changes are observable.
func TestManualSetOnline(t *testing.T) {
	m := NewManual()

	m.SetOnline(true)
	if !m.Online() {
		t.Error("Online() = false after SetOnline(true), want true")
	}

	m.SetOnline(false)
	if m.Online() {
		t.Error("Online() = true after SetOnline(false), want false")
	}
}

// TestManualSubscribeEdges verifies subscribers fire once per transition and
// never for repeated states.
func TestManualSubscribeEdges(t *testing.T) {
	m := NewManual()

	var mu sync.Mutex
	var got []bool
	m.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	m.SetOnline(true)
	m.SetOnline(true) // repeat, no transition
	m.SetOnline(false)
	m.SetOnline(false) // repeat, no transition
	m.SetOnline(true)

	want := []bool{true, false, true}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("received %d notifications %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// TestManualSubscribeCancel verifies a cancelled subscription stops receiving
// transitions while the others keep firing.
func TestManualSubscribeCancel(t *testing.T) {
	m := NewManual()

	var mu sync.Mutex
	var cancelled, kept int
	cancel := m.Subscribe(func(bool) {
		mu.Lock()
		cancelled++
		mu.Unlock()
	})
	m.Subscribe(func(bool) {
		mu.Lock()
		kept++
		mu.Unlock()
	})

	m.SetOnline(true)
	cancel()
	cancel() // second cancel is a no-op
	m.SetOnline(false)

	mu.Lock()
	defer mu.Unlock()
	if cancelled != 1 {
		t.Errorf("cancelled subscriber fired %d times, want 1", cancelled)
	}
	if kept != 2 {
		t.Errorf("kept subscriber fired %d times, want 2", kept)
	}
}

// TestManualMultipleSubscribers verifies every subscriber sees a transition.
func TestManualMultipleSubscribers(t *testing.T) {
	m := NewManual()

	var mu sync.Mutex
	count := 0
	for i := 0; i < 3; i++ {
		m.Subscribe(func(bool) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	m.SetOnline(true)

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("notified %d subscribers, want 3", count)
	}
}
