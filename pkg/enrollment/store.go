package enrollment

import (
	"context"

	"github.com/dmitrymomot/elevate/pkg/replay"
)

// Store persists secrets. A principal has at most one pending and one confirmed secret.
// The consumption record lives next to the confirmed secret, so every Store is
// also a replay.Store.
type Store interface {
	replay.Store

	// SavePending stores s as the principal's pending secret, replacing any previous pending one.
	SavePending(ctx context.Context, s Secret) error

	// Pending returns the pending secret or ErrSecretNotFound.
	Pending(ctx context.Context, principalID string) (Secret, error)

	// Confirmed returns the confirmed secret or ErrSecretNotFound.
	Confirmed(ctx context.Context, principalID string) (Secret, error)

	// Promote atomically replaces the confirmed secret with s and removes the pending one.
	// It fails with ErrSecretNotFound unless the current pending secret has s.Key,
	// so a confirmation racing a rotation or another confirmation cannot win twice.
	Promote(ctx context.Context, s Secret) error

	// Delete removes every secret of the principal.
	Delete(ctx context.Context, principalID string) error
}
