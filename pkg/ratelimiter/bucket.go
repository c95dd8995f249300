package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Bucket is a token bucket limiter over a Store.
type Bucket struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Bucket.
type Option func(*Bucket)

func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBucket validates cfg and creates a limiter.
func NewBucket(store Store, cfg Config, opts ...Option) (*Bucket, error) {
	if store == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("nil store"))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b := &Bucket{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Take consumes n tokens for key.
func (b *Bucket) Take(ctx context.Context, key string, n int) (Result, error) {
	if n <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidTokenCount, n)
	}

	remaining, resetAt, err := b.store.ConsumeTokens(ctx, key, n, b.cfg, b.now())
	if err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
	return Result{Limit: b.cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

// Allow takes one token and reports whether the attempt may proceed.
func (b *Bucket) Allow(ctx context.Context, key string) (bool, error) {
	res, err := b.Take(ctx, key, 1)
	if err != nil {
		return false, err
	}
	return res.Allowed(), nil
}

// Reset forgets the bucket for key, e.g. after a successful verification.
func (b *Bucket) Reset(ctx context.Context, key string) error {
	if err := b.store.Reset(ctx, key); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
