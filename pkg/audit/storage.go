package audit

import "context"

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, event Event) error
}

// BatchStorage is implemented by backends with an efficient bulk insert.
// The async logger prefers it over Store when available.
type BatchStorage interface {
	StoreBatch(ctx context.Context, events []Event) error
}

// StorageFunc adapts a function to Storage.
type StorageFunc func(ctx context.Context, event Event) error

func (f StorageFunc) Store(ctx context.Context, event Event) error {
	return f(ctx, event)
}
