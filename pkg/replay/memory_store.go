package replay

import (
	"context"
	"sync"
)

// MemoryStore keeps consumption records in process memory.
// Suitable for tests and single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

// Advance implements Store.
func (m *MemoryStore) Advance(ctx context.Context, principalID string, counter int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.counters[principalID]; ok && counter <= last {
		return false, nil
	}
	m.counters[principalID] = counter
	return true, nil
}

// Last implements Reader.
func (m *MemoryStore) Last(ctx context.Context, principalID string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[principalID]
	return c, ok, nil
}
