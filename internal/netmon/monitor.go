// Package netmon tracks backend reachability. The sync trigger subscribes to
// transitions so the queue drains as soon as connectivity returns.
package netmon

import "sync"

// Monitor exposes the current reachability verdict and transition
// notifications.
type Monitor interface {
	// Online reports the last known reachability state.
	Online() bool
	// Subscribe registers fn to run on every online/offline transition and
	// returns a cancel func that removes the registration. Callbacks run on
	// the goroutine that observed the transition, so they must return
	// quickly.
	Subscribe(fn func(online bool)) (cancel func())
}

// Manual is a Monitor whose state is set by the caller. It backs the prober
// and stands alone when the host application brings its own connectivity
// signal (mobile OS callbacks, a captive-portal check).
//
// A Manual starts offline; the first SetOnline(true) is a transition.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   []func(online bool)
}

// NewManual creates an offline Manual monitor.
func NewManual() *Manual {
	return &Manual{}
}

// Online reports the last state passed to SetOnline.
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for future transitions. Cancelling twice is
// harmless.
func (m *Manual) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
	idx := len(m.subs) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs[idx] = nil
	}
}

// SetOnline records the new state and notifies subscribers when it changed.
// Repeated calls with the same state are no-ops.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := append(([]func(bool))(nil), m.subs...)
	m.mu.Unlock()

	for _, fn := range subs {
		if fn == nil {
			continue
		}
		fn(online)
	}
}
