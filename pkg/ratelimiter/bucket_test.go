package ratelimiter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/elevate/pkg/ratelimiter"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newBucket(t *testing.T, cfg ratelimiter.Config, c *clock) *ratelimiter.Bucket {
	t.Helper()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	b, err := ratelimiter.NewBucket(store, cfg, ratelimiter.WithClock(c.Now))
	require.NoError(t, err)
	return b
}

func TestNewBucket_InvalidConfig(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	defer store.Close()

	tests := []struct {
		name string
		cfg  ratelimiter.Config
	}{
		{"zero capacity", ratelimiter.Config{RefillRate: 1, RefillInterval: time.Second}},
		{"zero rate", ratelimiter.Config{Capacity: 1, RefillInterval: time.Second}},
		{"zero interval", ratelimiter.Config{Capacity: 1, RefillRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ratelimiter.NewBucket(store, tt.cfg)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}

	_, err := ratelimiter.NewBucket(nil, ratelimiter.DefaultConfig())
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestBucket_BurstThenRefill(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Unix(1700000000, 0)}
	b := newBucket(t, ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: 30 * time.Second}, c)
	ctx := context.Background()

	for i := range 3 {
		ok, err := b.Allow(ctx, "admin-1")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}

	res, err := b.Take(ctx, "admin-1", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, 30*time.Second, res.RetryAfter(c.Now()))

	// another key has its own budget
	ok, err := b.Allow(ctx, "admin-2")
	require.NoError(t, err)
	assert.True(t, ok)

	c.Advance(30 * time.Second)
	ok, err = b.Allow(ctx, "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Allow(ctx, "admin-1")
	require.NoError(t, err)
	assert.False(t, ok)

	c.Advance(24 * time.Hour)
	res, err = b.Take(ctx, "admin-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining, "refill is capped at capacity")
}

func TestBucket_Reset(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Unix(1700000000, 0)}
	b := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute}, c)
	ctx := context.Background()

	ok, _ := b.Allow(ctx, "admin-1")
	require.True(t, ok)
	ok, _ = b.Allow(ctx, "admin-1")
	require.False(t, ok)

	require.NoError(t, b.Reset(ctx, "admin-1"))
	ok, err := b.Allow(ctx, "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBucket_InvalidTokenCount(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.DefaultConfig(), &clock{t: time.Now()})
	_, err := b.Take(context.Background(), "admin-1", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestBucket_Concurrent(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.Config{Capacity: 10, RefillRate: 1, RefillInterval: time.Hour}, &clock{t: time.Now()})

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := b.Allow(context.Background(), "admin-1"); err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, allowed.Load())
}

type mockStore struct{ mock.Mock }

func (m *mockStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg ratelimiter.Config, now time.Time) (int, time.Time, error) {
	args := m.Called(ctx, key, tokens, cfg, now)
	return args.Int(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *mockStore) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestBucket_StoreFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	store := &mockStore{}
	store.On("ConsumeTokens", mock.Anything, "admin-1", 1, mock.Anything, mock.Anything).Return(0, time.Time{}, boom)
	store.On("Reset", mock.Anything, "admin-1").Return(boom)

	b, err := ratelimiter.NewBucket(store, ratelimiter.DefaultConfig())
	require.NoError(t, err)

	ok, err := b.Allow(context.Background(), "admin-1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ratelimiter.ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, b.Reset(context.Background(), "admin-1"), ratelimiter.ErrStoreUnavailable)
	store.AssertExpectations(t)
}
