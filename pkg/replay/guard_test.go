package replay_test

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

	"github.com/dmitrymomot/elevate/pkg/replay"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Advance(ctx context.Context, principalID string, counter int64) (bool, error) {
	args := m.Called(ctx, principalID, counter)
	return args.Bool(0), args.Error(1)
}

func TestNewGuard_PanicsWithNilStore(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { replay.NewGuard(nil) })
}

func TestGuard_CheckAndConsume(t *testing.T) {
	t.Parallel()

	t.Run("strictly increasing counters are accepted", func(t *testing.T) {
		t.Parallel()
		g := replay.NewGuard(replay.NewMemoryStore())
		ctx := context.Background()

		for _, c := range []int64{100, 101, 105} {
			r, err := g.CheckAndConsume(ctx, "admin-1", c)
			require.NoError(t, err)
			assert.Equal(t, "admin-1", r.PrincipalID())
		}
	})

	t.Run("same or older counter is rejected", func(t *testing.T) {
		t.Parallel()
		store := replay.NewMemoryStore()
		g := replay.NewGuard(store)
		ctx := context.Background()

		_, err := g.CheckAndConsume(ctx, "admin-1", 100)
		require.NoError(t, err)

		r, err := g.CheckAndConsume(ctx, "admin-1", 100)
		assert.ErrorIs(t, err, replay.ErrReplayRejected)
		assert.Nil(t, r)

		_, err = g.CheckAndConsume(ctx, "admin-1", 99)
		assert.ErrorIs(t, err, replay.ErrReplayRejected)

		last, ok, err := store.Last(ctx, "admin-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(100), last, "rejection must not mutate the record")
	})

	t.Run("principals are independent", func(t *testing.T) {
		t.Parallel()
		g := replay.NewGuard(replay.NewMemoryStore())
		ctx := context.Background()

		_, err := g.CheckAndConsume(ctx, "admin-1", 100)
		require.NoError(t, err)
		_, err = g.CheckAndConsume(ctx, "admin-2", 100)
		require.NoError(t, err)
	})

	t.Run("receipt carries clock time", func(t *testing.T) {
		t.Parallel()
		fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		g := replay.NewGuard(replay.NewMemoryStore(), replay.WithClock(func() time.Time { return fixed }))

		r, err := g.CheckAndConsume(context.Background(), "admin-1", 1)
		require.NoError(t, err)
		assert.Equal(t, fixed, r.VerifiedAt())
	})

	t.Run("storage failure is reported as unavailable", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Advance", mock.Anything, "admin-1", int64(7)).Return(false, errors.New("connection refused"))
		g := replay.NewGuard(store)

		r, err := g.CheckAndConsume(context.Background(), "admin-1", 7)
		assert.ErrorIs(t, err, replay.ErrStorageUnavailable)
		assert.NotErrorIs(t, err, replay.ErrReplayRejected)
		assert.Nil(t, r)
		store.AssertExpectations(t)
	})

	t.Run("unknown principal passes through", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Advance", mock.Anything, "ghost", int64(7)).Return(false, replay.ErrUnknownPrincipal)
		g := replay.NewGuard(store)

		_, err := g.CheckAndConsume(context.Background(), "ghost", 7)
		assert.ErrorIs(t, err, replay.ErrUnknownPrincipal)
		assert.NotErrorIs(t, err, replay.ErrStorageUnavailable)
	})

	t.Run("store call carries a deadline", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Advance", mock.MatchedBy(func(ctx context.Context) bool {
			deadline, ok := ctx.Deadline()
			return ok && time.Until(deadline) <= 50*time.Millisecond
		}), "admin-1", int64(1)).Return(true, nil)
		g := replay.NewGuard(store, replay.WithStorageTimeout(50*time.Millisecond))

		_, err := g.CheckAndConsume(context.Background(), "admin-1", 1)
		require.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestGuard_ConcurrentConsumption(t *testing.T) {
	t.Parallel()
	g := replay.NewGuard(replay.NewMemoryStore())
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.CheckAndConsume(ctx, "admin-1", 4242)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, replay.ErrReplayRejected):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(63), rejected.Load())
}

func TestGuard_Record(t *testing.T) {
	t.Parallel()
	store := replay.NewMemoryStore()
	g := replay.NewGuard(store)
	ctx := context.Background()

	require.NoError(t, g.Record(ctx, "admin-1", 50))
	// Recording an older counter is a no-op, not an error.
	require.NoError(t, g.Record(ctx, "admin-1", 40))

	last, _, err := store.Last(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), last)

	_, err = g.CheckAndConsume(ctx, "admin-1", 50)
	assert.ErrorIs(t, err, replay.ErrReplayRejected)
}

func TestGuard_Consumed(t *testing.T) {
	t.Parallel()

	t.Run("reads without writing", func(t *testing.T) {
		t.Parallel()
		store := replay.NewMemoryStore()
		g := replay.NewGuard(store)
		ctx := context.Background()

		consumed, err := g.Consumed(ctx, "admin-1", 10)
		require.NoError(t, err)
		assert.False(t, consumed, "nothing recorded yet")

		require.NoError(t, g.Record(ctx, "admin-1", 10))

		for counter, want := range map[int64]bool{9: true, 10: true, 11: false} {
			consumed, err := g.Consumed(ctx, "admin-1", counter)
			require.NoError(t, err)
			assert.Equal(t, want, consumed, "counter %d", counter)
		}

		last, _, err := store.Last(ctx, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), last)
	})

	t.Run("store without reader reports not consumed", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		g := replay.NewGuard(store)

		consumed, err := g.Consumed(context.Background(), "admin-1", 1)
		require.NoError(t, err)
		assert.False(t, consumed)
		store.AssertNotCalled(t, "Advance", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReceipt_Redeem(t *testing.T) {
	t.Parallel()
	g := replay.NewGuard(replay.NewMemoryStore())
	r, err := g.CheckAndConsume(context.Background(), "admin-1", 1)
	require.NoError(t, err)

	assert.True(t, r.Redeem())
	assert.False(t, r.Redeem())

	var nilReceipt *replay.Receipt
	assert.False(t, nilReceipt.Redeem())
	assert.Empty(t, nilReceipt.PrincipalID())
}
