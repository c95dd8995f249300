package adminsession

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory.
// Sessions of a principal are kept in start order; only the last one can be active.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]Session
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Session)}
}

func (m *MemoryStore) Open(ctx context.Context, s Session) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.PrincipalID == "" {
		return nil, ErrMissingPrincipal
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.sessions[s.PrincipalID]

	var superseded *Session
	if n := len(list); n > 0 && list[n-1].IsActive() {
		_ = list[n-1].MarkEnded(s.StartedAt, EndReasonSuperseded)
		old := list[n-1].clone()
		superseded = &old
	}

	s.EndedAt = nil
	s.EndReason = ""
	m.sessions[s.PrincipalID] = append(list, s.clone())
	return superseded, nil
}

func (m *MemoryStore) End(ctx context.Context, principalID string, at time.Time, reason EndReason) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.sessions[principalID]
	n := len(list)
	if n == 0 || !list[n-1].IsActive() {
		return nil, ErrNoActiveSession
	}

	_ = list[n-1].MarkEnded(at, reason)
	ended := list[n-1].clone()
	return &ended, nil
}

func (m *MemoryStore) Active(ctx context.Context, principalID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.sessions[principalID]
	n := len(list)
	if n == 0 || !list[n-1].IsActive() {
		return nil, ErrNoActiveSession
	}

	s := list[n-1].clone()
	return &s, nil
}

func (m *MemoryStore) EndStartedBefore(ctx context.Context, cutoff, at time.Time) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []Session
	for _, list := range m.sessions {
		n := len(list)
		if n == 0 || !list[n-1].IsActive() || !list[n-1].StartedAt.Before(cutoff) {
			continue
		}
		_ = list[n-1].MarkEnded(at, EndReasonExpired)
		expired = append(expired, list[n-1].clone())
	}
	return expired, nil
}

func (m *MemoryStore) History(ctx context.Context, principalID string, limit int) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.sessions[principalID]
	out := make([]Session, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, list[i].clone())
	}
	return slices.Clip(out), nil
}
