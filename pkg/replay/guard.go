package replay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/elevate/pkg/logger"
)

// DefaultStorageTimeout bounds every store call made by the guard.
const DefaultStorageTimeout = 3 * time.Second

// Receipt proves that a code was both correct and not previously consumed.
// It is handed to the admin session manager and can be redeemed once.
type Receipt struct {
	principalID string
	verifiedAt  time.Time
	redeemed    atomic.Bool
}

// PrincipalID returns the principal the code was consumed for.
func (r *Receipt) PrincipalID() string {
	if r == nil {
		return ""
	}
	return r.principalID
}

// VerifiedAt returns when the counter was consumed.
func (r *Receipt) VerifiedAt() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.verifiedAt
}

// Redeem marks the receipt as used. Only the first call returns true.
func (r *Receipt) Redeem() bool {
	return r != nil && r.redeemed.CompareAndSwap(false, true)
}

// Guard is the sole authority on whether a cryptographically valid code may be used.
type Guard struct {
	store   Store
	now     func() time.Time
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source used for receipts.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithStorageTimeout bounds each store call. Non-positive values are ignored.
func WithStorageTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGuard creates a replay guard on top of store.
func NewGuard(store Store, opts ...Option) *Guard {
	if store == nil {
		panic("replay: store cannot be nil")
	}

	g := &Guard{
		store:   store,
		now:     time.Now,
		timeout: DefaultStorageTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckAndConsume consumes counter for principalID. Counters at or below the recorded
// one are rejected with ErrReplayRejected and nothing is written.
func (g *Guard) CheckAndConsume(ctx context.Context, principalID string, counter int64) (*Receipt, error) {
	advanced, err := g.advance(ctx, principalID, counter)
	if err != nil {
		return nil, err
	}
	if !advanced {
		g.log.WarnContext(ctx, "one-time code replay rejected",
			logger.PrincipalID(principalID),
			logger.Component("replay"),
		)
		return nil, ErrReplayRejected
	}

	return &Receipt{principalID: principalID, verifiedAt: g.now()}, nil
}

// Record moves the consumption record forward to counter if it is behind.
// Used after enrollment so the confirming code cannot be used again.
func (g *Guard) Record(ctx context.Context, principalID string, counter int64) error {
	_, err := g.advance(ctx, principalID, counter)
	return err
}

// Consumed reports whether counter is at or below the principal's recorded counter.
// It never writes. Stores that do not implement Reader always report false.
func (g *Guard) Consumed(ctx context.Context, principalID string, counter int64) (bool, error) {
	r, ok := g.store.(Reader)
	if !ok {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	last, found, err := r.Last(ctx, principalID)
	if err != nil {
		return false, errors.Join(ErrStorageUnavailable, err)
	}
	return found && counter <= last, nil
}

func (g *Guard) advance(ctx context.Context, principalID string, counter int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	advanced, err := g.store.Advance(ctx, principalID, counter)
	if err != nil {
		if errors.Is(err, ErrUnknownPrincipal) {
			return false, err
		}
		return false, errors.Join(ErrStorageUnavailable, err)
	}
	return advanced, nil
}
