// Package store persists pending operations between app launches.
//
// The engine never talks to SQLite directly: it holds a Store and assumes
// that anything Append returns nil for will still be there after a crash.
package store

import (
	"context"

	"github.com/dmeireles/writeback/internal/models"
)

// Store is the durability contract for the pending-operation queue.
//
// List returns records in created_at-then-insertion order; callers that need
// replay order re-sort by priority themselves. Remove is a no-op when the id
// is absent. Replace upserts by id and behaves as Append when the id is new.
// All I/O failures carry the STORE_ERROR code.
type Store interface {
	Append(ctx context.Context, op *models.Operation) error
	List(ctx context.Context) ([]*models.Operation, error)
	Remove(ctx context.Context, id string) error
	Replace(ctx context.Context, op *models.Operation) error
	Count(ctx context.Context) (int, error)
	Close() error
}
