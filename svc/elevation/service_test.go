package elevation_test

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

	"github.com/dmitrymomot/elevate/pkg/adminsession"
	"github.com/dmitrymomot/elevate/pkg/audit"
	"github.com/dmitrymomot/elevate/pkg/enrollment"
	"github.com/dmitrymomot/elevate/pkg/ratelimiter"
	"github.com/dmitrymomot/elevate/pkg/replay"
	"github.com/dmitrymomot/elevate/pkg/totp"
	"github.com/dmitrymomot/elevate/svc/elevation"
)

const (
	principal = "admin-1"
	secretKey = "JBSWY3DPEHPK3PXP"
)

var now = time.Unix(1700000000, 0).UTC()

type fixture struct {
	svc      *elevation.Service
	store    *enrollment.MemoryStore
	sessions *adminsession.Manager
	events   *audit.MemoryStorage
}

func newFixture(t *testing.T, opts ...elevation.Option) fixture {
	t.Helper()

	store := enrollment.NewMemoryStore()
	events := audit.NewMemoryStorage()
	auditor := audit.NewLogger(events)
	clock := func() time.Time { return now }

	guard := replay.NewGuard(store, replay.WithClock(clock))
	sessions := adminsession.NewManager(adminsession.NewMemoryStore(),
		adminsession.WithClock(clock),
		adminsession.WithAuditor(auditor),
	)

	opts = append([]elevation.Option{
		elevation.WithClock(clock),
		elevation.WithAuditor(auditor),
	}, opts...)

	return fixture{
		svc:      elevation.New(store, guard, sessions, opts...),
		store:    store,
		sessions: sessions,
		events:   events,
	}
}

// enroll stores a confirmed secret whose last consumed counter is before now.
func (f fixture) enroll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SavePending(ctx, enrollment.Secret{PrincipalID: principal, Key: secretKey, CreatedAt: now}))
	require.NoError(t, f.store.Promote(ctx, enrollment.Secret{
		PrincipalID: principal,
		Key:         secretKey,
		LastCounter: totp.Counter(now, 30) - 10,
	}))
}

func TestVerifyAndConsume(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enroll(t)

		out, err := f.svc.VerifyAndConsume(context.Background(), principal, "324550", now)
		require.NoError(t, err)
		assert.Equal(t, elevation.ResultAccepted, out.Result)
		require.True(t, out.Accepted())
		assert.Equal(t, principal, out.Receipt.PrincipalID())
		assert.Equal(t, now, out.Receipt.VerifiedAt())
		assert.NoError(t, out.Err())
		assert.Equal(t, []string{audit.ActionVerificationPassed}, f.events.Actions())
	})

	t.Run("code from previous step within drift", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enroll(t)

		out, err := f.svc.VerifyAndConsume(context.Background(), principal, "822542", now)
		require.NoError(t, err)
		assert.True(t, out.Accepted())
	})

	t.Run("invalid code", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enroll(t)

		for _, code := range []string{"000000", "968785", "12345", "abcdef", ""} {
			out, err := f.svc.VerifyAndConsume(context.Background(), principal, code, now)
			require.NoError(t, err)
			assert.Equal(t, elevation.ResultInvalidCode, out.Result, code)
			assert.Nil(t, out.Receipt)
			assert.ErrorIs(t, out.Err(), elevation.ErrInvalidCode)
		}

		events := f.events.Events()
		require.NotEmpty(t, events)
		assert.Equal(t, audit.ActionVerificationFailed, events[0].Action)
		assert.Equal(t, audit.ResultFailure, events[0].Result)
		assert.Equal(t, string(elevation.ResultInvalidCode), events[0].Reason)
	})

	t.Run("replay rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enroll(t)
		ctx := context.Background()

		out, err := f.svc.VerifyAndConsume(ctx, principal, "324550", now)
		require.NoError(t, err)
		require.True(t, out.Accepted())

		out, err = f.svc.VerifyAndConsume(ctx, principal, "324550", now)
		require.NoError(t, err)
		assert.Equal(t, elevation.ResultReplayRejected, out.Result)
		assert.ErrorIs(t, out.Err(), replay.ErrReplayRejected)

		// an older code inside the window is also a replay
		out, err = f.svc.VerifyAndConsume(ctx, principal, "822542", now)
		require.NoError(t, err)
		assert.Equal(t, elevation.ResultReplayRejected, out.Result)

		assert.Contains(t, f.events.Actions(), audit.ActionReplayRejected)
		assert.NotContains(t, f.events.Actions(), audit.ActionVerificationFailed)
	})

	t.Run("not enrolled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		out, err := f.svc.VerifyAndConsume(context.Background(), principal, "324550", now)
		require.NoError(t, err)
		assert.Equal(t, elevation.ResultNotEnrolled, out.Result)
		assert.ErrorIs(t, out.Err(), elevation.ErrNotEnrolled)
	})

	t.Run("pending secret is not enough", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.store.SavePending(context.Background(), enrollment.Secret{PrincipalID: principal, Key: secretKey}))

		out, err := f.svc.VerifyAndConsume(context.Background(), principal, "324550", now)
		require.NoError(t, err)
		assert.Equal(t, elevation.ResultNotEnrolled, out.Result)
	})

	t.Run("missing principal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.VerifyAndConsume(context.Background(), "", "324550", now)
		assert.ErrorIs(t, err, elevation.ErrMissingPrincipal)
	})
}

func TestVerifyAndConsume_StrictlyIncreasingCounters(t *testing.T) {
	t.Parallel()

	f := newFixture(t, elevation.WithTOTPConfig(totp.Config{DriftSteps: 0}))
	f.enroll(t)
	ctx := context.Background()

	for i := range 5 {
		at := now.Add(time.Duration(i) * 30 * time.Second)
		code, err := totp.Generate(secretKey, at)
		require.NoError(t, err)

		out, err := f.svc.VerifyAndConsume(ctx, principal, code, at)
		require.NoError(t, err)
		assert.True(t, out.Accepted(), "step %d", i)

		out, err = f.svc.VerifyAndConsume(ctx, principal, code, at)
		require.NoError(t, err)
		assert.Equal(t, elevation.ResultReplayRejected, out.Result, "step %d", i)
	}
}

func TestVerifyAndConsume_ConcurrentSubmissions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.enroll(t)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		replayed atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.VerifyAndConsume(context.Background(), principal, "324550", now)
			if !assert.NoError(t, err) {
				return
			}
			switch out.Result {
			case elevation.ResultAccepted:
				accepted.Add(1)
			case elevation.ResultReplayRejected:
				replayed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, accepted.Load())
	assert.EqualValues(t, 19, replayed.Load())
}

func TestVerifyAndConsume_RateLimited(t *testing.T) {
	t.Parallel()

	limitStore := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(limitStore.Close)
	bucket, err := ratelimiter.NewBucket(limitStore,
		ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour},
		ratelimiter.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	f := newFixture(t, elevation.WithLimiter(bucket))
	f.enroll(t)
	ctx := context.Background()

	for range 2 {
		out, err := f.svc.VerifyAndConsume(ctx, principal, "000000", now)
		require.NoError(t, err)
		assert.Equal(t, elevation.ResultInvalidCode, out.Result)
	}

	// even the correct code is refused once the budget is spent
	out, err := f.svc.VerifyAndConsume(ctx, principal, "324550", now)
	require.NoError(t, err)
	assert.Equal(t, elevation.ResultRateLimited, out.Result)
	assert.ErrorIs(t, out.Err(), elevation.ErrRateLimited)
	assert.Contains(t, f.events.Actions(), audit.ActionVerificationLimited)

	// the throttled attempt did not consume the step
	require.NoError(t, bucket.Reset(ctx, "verify:"+principal))
	out, err = f.svc.VerifyAndConsume(ctx, principal, "324550", now)
	require.NoError(t, err)
	assert.True(t, out.Accepted())
}

func TestVerifyAndConsume_SuccessResetsLimiter(t *testing.T) {
	t.Parallel()

	limitStore := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(limitStore.Close)
	bucket, err := ratelimiter.NewBucket(limitStore,
		ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour},
		ratelimiter.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	f := newFixture(t, elevation.WithLimiter(bucket))
	f.enroll(t)
	ctx := context.Background()

	_, err = f.svc.VerifyAndConsume(ctx, principal, "000000", now)
	require.NoError(t, err)
	out, err := f.svc.VerifyAndConsume(ctx, principal, "324550", now)
	require.NoError(t, err)
	require.True(t, out.Accepted())

	res, err := bucket.Take(ctx, "verify:"+principal, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remaining)
}

type limiterFunc func(ctx context.Context, key string) (bool, error)

func (f limiterFunc) Allow(ctx context.Context, key string) (bool, error) { return f(ctx, key) }

func TestVerifyAndConsume_LimiterFailureFailsClosed(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis down")
	f := newFixture(t, elevation.WithLimiter(limiterFunc(func(context.Context, string) (bool, error) {
		return false, boom
	})))
	f.enroll(t)

	out, err := f.svc.VerifyAndConsume(context.Background(), principal, "324550", now)
	assert.ErrorIs(t, err, elevation.ErrStorageUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.False(t, out.Accepted())
}

type mockSecrets struct{ mock.Mock }

func (m *mockSecrets) Confirmed(ctx context.Context, principalID string) (enrollment.Secret, error) {
	args := m.Called(ctx, principalID)
	return args.Get(0).(enrollment.Secret), args.Error(1)
}

func TestVerifyAndConsume_SecretStoreFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	secrets := &mockSecrets{}
	secrets.On("Confirmed", mock.Anything, principal).Return(enrollment.Secret{}, boom)

	guard := replay.NewGuard(replay.NewMemoryStore())
	sessions := adminsession.NewManager(adminsession.NewMemoryStore())
	svc := elevation.New(secrets, guard, sessions)

	out, err := svc.VerifyAndConsume(context.Background(), principal, "324550", now)
	assert.ErrorIs(t, err, elevation.ErrStorageUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, elevation.Outcome{}, out)
	secrets.AssertExpectations(t)
}

func TestVerifyAndConsume_SecretStoreTimeout(t *testing.T) {
	t.Parallel()

	secrets := &mockSecrets{}
	secrets.On("Confirmed", mock.Anything, principal).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(enrollment.Secret{}, context.DeadlineExceeded)

	svc := elevation.New(secrets,
		replay.NewGuard(replay.NewMemoryStore()),
		adminsession.NewManager(adminsession.NewMemoryStore()),
		elevation.WithConfig(elevation.Config{StorageTimeout: 20 * time.Millisecond}),
	)

	start := time.Now()
	_, err := svc.VerifyAndConsume(context.Background(), principal, "324550", now)
	assert.ErrorIs(t, err, elevation.ErrStorageUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestVerifyAndConsume_CorruptSecret(t *testing.T) {
	t.Parallel()

	secrets := &mockSecrets{}
	secrets.On("Confirmed", mock.Anything, principal).Return(enrollment.Secret{PrincipalID: principal, Key: "not base32!"}, nil)

	svc := elevation.New(secrets,
		replay.NewGuard(replay.NewMemoryStore()),
		adminsession.NewManager(adminsession.NewMemoryStore()),
	)

	_, err := svc.VerifyAndConsume(context.Background(), principal, "324550", now)
	assert.ErrorIs(t, err, totp.ErrInvalidSecret)
}

func TestElevate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.enroll(t)
	ctx := context.Background()

	first, err := f.svc.Elevate(ctx, principal, "822542", "incident 42", adminsession.WithScope("billing"))
	require.NoError(t, err)
	assert.Equal(t, principal, first.PrincipalID)
	assert.Equal(t, "incident 42", first.Reason)
	assert.Equal(t, "billing", first.Scope)
	assert.True(t, first.IsActive())

	// a second elevation supersedes the first
	second, err := f.svc.Elevate(ctx, principal, "324550", "follow-up")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, err := f.svc.Active(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	history, err := f.sessions.History(ctx, principal, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, adminsession.EndReasonSuperseded, history[1].EndReason)

	// reusing a code cannot open another session
	_, err = f.svc.Elevate(ctx, principal, "324550", "again")
	assert.ErrorIs(t, err, replay.ErrReplayRejected)

	_, err = f.svc.Elevate(ctx, principal, "000000", "guess")
	assert.ErrorIs(t, err, elevation.ErrInvalidCode)

	active, err = f.svc.Active(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestElevate_NotEnrolled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Elevate(context.Background(), principal, "324550", "incident")
	assert.ErrorIs(t, err, elevation.ErrNotEnrolled)

	_, err = f.svc.Active(context.Background(), principal)
	assert.ErrorIs(t, err, adminsession.ErrNoActiveSession)
}

func TestDrop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.enroll(t)
	ctx := context.Background()

	err := f.svc.Drop(ctx, principal)
	assert.ErrorIs(t, err, adminsession.ErrNoActiveSession)
	assert.True(t, adminsession.IsInformational(err))

	_, err = f.svc.Elevate(ctx, principal, "324550", "incident")
	require.NoError(t, err)

	require.NoError(t, f.svc.Drop(ctx, principal))
	_, err = f.svc.Active(ctx, principal)
	assert.ErrorIs(t, err, adminsession.ErrNoActiveSession)

	assert.ErrorIs(t, f.svc.Drop(ctx, ""), elevation.ErrMissingPrincipal)
	assert.Contains(t, f.events.Actions(), audit.ActionSessionEnded)
}

func TestDrop_Concurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.ErrorIs(t, f.svc.Drop(context.Background(), principal), adminsession.ErrNoActiveSession)
		}()
	}
	wg.Wait()
}

func TestNew_PanicsWithoutCollaborators(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		elevation.New(nil, replay.NewGuard(replay.NewMemoryStore()), adminsession.NewManager(adminsession.NewMemoryStore()))
	})
}
