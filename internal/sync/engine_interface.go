// Package sync provides synchronization interfaces and implementations.
package sync

import (
	"context"
	"time"
)

// Synchronizer is the engine surface consumed by the trigger, the admin API
// and the CLI. It allows mocking in tests and alternative implementations.
type Synchronizer interface {
	// Enqueue stages one operation for replay and returns its id.
	Enqueue(ctx context.Context, req Request) (string, error)

	// Synchronize drains the queue once; see Engine.Synchronize for the
	// re-entrancy and callback contract.
	Synchronize(ctx context.Context, callbacks ...func(success bool)) bool

	// Status returns Idle or Syncing.
	Status() Status

	// LastSync returns when the most recent pass finished.
	LastSync() time.Time

	// Depth returns the number of operations currently persisted.
	Depth(ctx context.Context) (int, error)
}

var _ Synchronizer = (*Engine)(nil)
