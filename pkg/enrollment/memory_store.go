package enrollment

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/dmitrymomot/elevate/pkg/replay"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	pending   map[string]Secret
	confirmed map[string]Secret
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:   make(map[string]Secret),
		confirmed: make(map[string]Secret),
	}
}

func (m *MemoryStore) SavePending(ctx context.Context, s Secret) error {
	if s.PrincipalID == "" {
		return ErrMissingPrincipal
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.State = StatePending
	m.pending[s.PrincipalID] = s
	return nil
}

func (m *MemoryStore) Pending(ctx context.Context, principalID string) (Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pending[principalID]
	if !ok {
		return Secret{}, ErrSecretNotFound
	}
	return s, nil
}

func (m *MemoryStore) Confirmed(ctx context.Context, principalID string) (Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.confirmed[principalID]
	if !ok {
		return Secret{}, ErrSecretNotFound
	}
	return copySecret(s), nil
}

func (m *MemoryStore) Promote(ctx context.Context, s Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, ok := m.pending[s.PrincipalID]
	if !ok || subtle.ConstantTimeCompare([]byte(pending.Key), []byte(s.Key)) != 1 {
		return ErrSecretNotFound
	}

	s.State = StateConfirmed
	m.confirmed[s.PrincipalID] = copySecret(s)
	delete(m.pending, s.PrincipalID)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, principalID)
	delete(m.confirmed, principalID)
	return nil
}

// Advance implements replay.Store against the confirmed secret's record.
func (m *MemoryStore) Advance(ctx context.Context, principalID string, counter int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.confirmed[principalID]
	if !ok {
		return false, replay.ErrUnknownPrincipal
	}
	if counter <= s.LastCounter {
		return false, nil
	}
	s.LastCounter = counter
	m.confirmed[principalID] = s
	return true, nil
}

func copySecret(s Secret) Secret {
	if s.ConfirmedAt != nil {
		at := *s.ConfirmedAt
		s.ConfirmedAt = &at
	}
	return s
}
