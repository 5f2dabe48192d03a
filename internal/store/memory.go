package store

import (
	"context"
	"sync"

	"github.com/dmeireles/writeback/internal/models"
)

var _ Store = (*Memory)(nil)

// Memory is a volatile Store: a mutex-guarded map plus an insertion-order id
// slice. Useful in tests and for hosts that opt out of durability.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*models.Operation
	order []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]*models.Operation),
	}
}

// Append stores a copy of op. Re-appending an existing id overwrites the
// record but keeps its original queue position.
func (m *Memory) Append(ctx context.Context, op *models.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[op.ID]; !exists {
		m.order = append(m.order, op.ID)
	}
	clone := *op
	m.items[op.ID] = &clone
	return nil
}

// List returns copies of all records in insertion order.
func (m *Memory) List(ctx context.Context) ([]*models.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]*models.Operation, 0, len(m.order))
	for _, id := range m.order {
		clone := *m.items[id]
		ops = append(ops, &clone)
	}
	return ops, nil
}

// Remove drops the record with the given id. Absent ids are a no-op.
func (m *Memory) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[id]; !exists {
		return nil
	}
	delete(m.items, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Replace upserts the record keyed by its id, preserving queue position for
// existing ids.
func (m *Memory) Replace(ctx context.Context, op *models.Operation) error {
	return m.Append(ctx, op)
}

// Count returns the number of stored records.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
