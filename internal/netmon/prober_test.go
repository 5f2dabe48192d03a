// Package netmon tests for the HTTP health prober.
package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// waitForTransition blocks until the channel delivers or the test times out.
func waitForTransition(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("transition = %v, want %v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no transition to %v observed", want)
	}
}

// TestProberDetectsOnline verifies a healthy backend flips the prober online.
func TestProberDetectsOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := NewProber(ProberConfig{URL: server.URL, Interval: 20 * time.Millisecond})
	transitions := make(chan bool, 8)
	p.Subscribe(func(online bool) { transitions <- online })

	p.Start(context.Background())
	defer p.Stop()

	waitForTransition(t, transitions, true)
	if !p.Online() {
		t.Error("Online() = false after a successful probe, want true")
	}
}

// TestProberDetectsOffline verifies losing the backend flips the prober back
// offline.
func TestProberDetectsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	p := NewProber(ProberConfig{URL: server.URL, Interval: 20 * time.Millisecond})
	transitions := make(chan bool, 8)
	p.Subscribe(func(online bool) { transitions <- online })

	p.Start(context.Background())
	defer p.Stop()

	waitForTransition(t, transitions, true)

	server.Close()

	waitForTransition(t, transitions, false)
	if p.Online() {
		t.Error("Online() = true after the backend vanished, want false")
	}
}

// TestProberFallsBackToGet verifies a backend that rejects HEAD with 405 is
// still probed successfully via GET.
func TestProberFallsBackToGet(t *testing.T) {
	var gets atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			gets.Add(1)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	p := NewProber(ProberConfig{URL: server.URL, Interval: 20 * time.Millisecond})
	transitions := make(chan bool, 8)
	p.Subscribe(func(online bool) { transitions <- online })

	p.Start(context.Background())
	defer p.Stop()

	waitForTransition(t, transitions, true)
	if gets.Load() == 0 {
		t.Error("prober never fell back to GET")
	}
}

// TestProberServerErrorIsOffline verifies a 5xx health response counts as
// unreachable.
func TestProberServerErrorIsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewProber(ProberConfig{URL: server.URL, Interval: 20 * time.Millisecond})
	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(100 * time.Millisecond)
	if p.Online() {
		t.Error("Online() = true with a 500 health endpoint, want false")
	}
}

// TestProberClientErrorIsOnline verifies a 4xx response still proves the
// backend is reachable.
func TestProberClientErrorIsOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewProber(ProberConfig{URL: server.URL, Interval: 20 * time.Millisecond})
	transitions := make(chan bool, 8)
	p.Subscribe(func(online bool) { transitions <- online })

	p.Start(context.Background())
	defer p.Stop()

	waitForTransition(t, transitions, true)
}

// TestProberStopIdempotent verifies Stop is safe to call twice and before
// Start.
func TestProberStopIdempotent(t *testing.T) {
	p := NewProber(ProberConfig{URL: "http://127.0.0.1:0/healthz", Interval: time.Hour})
	p.Stop() // never started

	p.Start(context.Background())
	p.Stop()
	p.Stop() // second stop
}
