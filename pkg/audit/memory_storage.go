package audit

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/elevate/pkg/logger"
)

// MemoryStorage keeps events in memory. Intended for tests and local development.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Store(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) StoreBatch(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events returns a copy of everything stored so far.
func (m *MemoryStorage) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

// Actions returns the action names in insertion order.
func (m *MemoryStorage) Actions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Action)
	}
	return out
}

// SlogStorage writes events to a structured logger. It is the default sink when no
// durable audit backend is configured.
type SlogStorage struct {
	log *slog.Logger
}

func NewSlogStorage(log *slog.Logger) *SlogStorage {
	if log == nil {
		log = slog.Default()
	}
	return &SlogStorage{log: log.With(logger.Component("audit"))}
}

func (s *SlogStorage) Store(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Result != ResultSuccess {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("action", e.Action),
		slog.String("result", string(e.Result)),
		logger.PrincipalID(e.PrincipalID),
		slog.Time("created_at", e.CreatedAt),
	}
	if e.SessionID != "" {
		attrs = append(attrs, logger.SessionID(e.SessionID))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", e.Metadata))
	}

	s.log.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}
