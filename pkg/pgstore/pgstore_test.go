package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/elevate/internal/db/migrations"
	"github.com/dmitrymomot/elevate/pkg/adminsession"
	"github.com/dmitrymomot/elevate/pkg/audit"
	"github.com/dmitrymomot/elevate/pkg/enrollment"
	"github.com/dmitrymomot/elevate/pkg/pg"
	"github.com/dmitrymomot/elevate/pkg/pgstore"
	"github.com/dmitrymomot/elevate/pkg/replay"
	"github.com/dmitrymomot/elevate/pkg/totp"
)

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
	poolErr  error
)

// testPool connects to PG_CONN_URL and applies migrations once per test binary.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	poolOnce.Do(func() {
		ctx := context.Background()
		cfg := pg.Config{
			ConnectionString: url,
			MaxOpenConns:     10,
			MaxIdleConns:     1,
			RetryAttempts:    1,
			MigrationsDir:    ".",
			MigrationsTable:  "elevate_schema_migrations",
		}
		pool, poolErr = pg.Connect(ctx, cfg)
		if poolErr != nil {
			return
		}
		poolErr = pg.Migrate(ctx, pool, migrations.FS, cfg, slog.Default())
	})
	require.NoError(t, poolErr)
	return pool
}

func testSealer(t *testing.T) *totp.Sealer {
	t.Helper()
	s, err := totp.NewSealer(make([]byte, totp.AESKeySize))
	require.NoError(t, err)
	return s
}

func TestSecrets(t *testing.T) {
	t.Parallel()

	db := testPool(t)
	store := pgstore.NewSecrets(db, testSealer(t))
	ctx := context.Background()
	principal := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.Pending(ctx, principal)
	assert.ErrorIs(t, err, enrollment.ErrSecretNotFound)

	_, err = store.Advance(ctx, principal, 1)
	assert.ErrorIs(t, err, replay.ErrUnknownPrincipal)

	require.NoError(t, store.SavePending(ctx, enrollment.Secret{PrincipalID: principal, Key: "JBSWY3DPEHPK3PXP", CreatedAt: now}))

	pending, err := store.Pending(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", pending.Key)
	assert.Equal(t, enrollment.StatePending, pending.State)

	var raw string
	require.NoError(t, db.QueryRow(ctx, `SELECT secret_ciphertext FROM mfa_secrets WHERE principal_id = $1`, principal).Scan(&raw))
	assert.NotContains(t, raw, "JBSWY3DPEHPK3PXP")

	confirmed, err := enrollment.ConfirmSecret(pending, "324550", time.Unix(1700000000, 0))
	require.NoError(t, err)

	assert.ErrorIs(t, store.Promote(ctx, enrollment.Secret{PrincipalID: principal, Key: "GEZDGNBVGY3TQOJQ"}), enrollment.ErrSecretNotFound)
	require.NoError(t, store.Promote(ctx, confirmed))
	assert.ErrorIs(t, store.Promote(ctx, confirmed), enrollment.ErrSecretNotFound)

	got, err := store.Confirmed(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, confirmed.LastCounter, got.LastCounter)
	assert.True(t, got.IsConfirmed())

	ok, err := store.Advance(ctx, principal, confirmed.LastCounter)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Advance(ctx, principal, confirmed.LastCounter+1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, principal))
	_, err = store.Confirmed(ctx, principal)
	assert.ErrorIs(t, err, enrollment.ErrSecretNotFound)
}

func TestSecrets_ConcurrentAdvance(t *testing.T) {
	t.Parallel()

	db := testPool(t)
	store := pgstore.NewSecrets(db, testSealer(t))
	ctx := context.Background()
	principal := uuid.NewString()

	require.NoError(t, store.SavePending(ctx, enrollment.Secret{PrincipalID: principal, Key: "JBSWY3DPEHPK3PXP", CreatedAt: time.Now()}))
	require.NoError(t, store.Promote(ctx, enrollment.Secret{PrincipalID: principal, Key: "JBSWY3DPEHPK3PXP", LastCounter: 10}))

	guard := replay.NewGuard(store)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := guard.CheckAndConsume(ctx, principal, 11); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestSessions(t *testing.T) {
	t.Parallel()

	db := testPool(t)
	store := pgstore.NewSessions(db)
	ctx := context.Background()
	principal := uuid.NewString()
	start := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.Active(ctx, principal)
	assert.ErrorIs(t, err, adminsession.ErrNoActiveSession)
	_, err = store.End(ctx, principal, start, adminsession.EndReasonLogout)
	assert.ErrorIs(t, err, adminsession.ErrNoActiveSession)

	first := adminsession.NewSession(principal, start)
	first.Reason = "incident"
	superseded, err := store.Open(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, superseded)

	second := adminsession.NewSession(principal, start.Add(time.Second))
	superseded, err = store.Open(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, superseded)
	assert.Equal(t, first.ID, superseded.ID)
	assert.Equal(t, adminsession.EndReasonSuperseded, superseded.EndReason)
	assert.Equal(t, "incident", superseded.Reason)

	active, err := store.Active(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	history, err := store.History(ctx, principal, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)

	history, err = store.History(ctx, principal, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	ended, err := store.End(ctx, principal, start.Add(time.Minute), adminsession.EndReasonLogout)
	require.NoError(t, err)
	assert.Equal(t, second.ID, ended.ID)
	assert.Equal(t, adminsession.EndReasonLogout, ended.EndReason)
}

func TestSessions_ConcurrentOpen(t *testing.T) {
	t.Parallel()

	db := testPool(t)
	store := pgstore.NewSessions(db)
	ctx := context.Background()
	principal := uuid.NewString()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Open(ctx, adminsession.NewSession(principal, time.Now()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var active int
	require.NoError(t, db.QueryRow(ctx,
		`SELECT count(*) FROM admin_sessions WHERE principal_id = $1 AND ended_at IS NULL`, principal,
	).Scan(&active))
	assert.Equal(t, 1, active)
}

func TestSessions_EndStartedBefore(t *testing.T) {
	t.Parallel()

	db := testPool(t)
	store := pgstore.NewSessions(db)
	ctx := context.Background()
	principal := uuid.NewString()
	old := time.Now().Add(-48 * time.Hour)

	_, err := store.Open(ctx, adminsession.NewSession(principal, old))
	require.NoError(t, err)

	expired, err := store.EndStartedBefore(ctx, old.Add(time.Second), time.Now())
	require.NoError(t, err)

	var found bool
	for _, s := range expired {
		if s.PrincipalID == principal {
			found = true
			assert.Equal(t, adminsession.EndReasonExpired, s.EndReason)
		}
	}
	assert.True(t, found)
}

func TestAuditStorage(t *testing.T) {
	t.Parallel()

	db := testPool(t)
	storage := pgstore.NewAuditStorage(db)
	ctx := context.Background()
	principal := uuid.NewString()

	require.NoError(t, storage.Store(ctx, audit.Event{
		ID:          uuid.NewString(),
		PrincipalID: principal,
		Action:      audit.ActionSessionStarted,
		Result:      audit.ResultSuccess,
		Metadata:    map[string]any{"ip": "10.0.0.1"},
		CreatedAt:   time.Now(),
	}))

	batch := make([]audit.Event, 3)
	for i := range batch {
		batch[i] = audit.Event{
			ID:          uuid.NewString(),
			PrincipalID: principal,
			Action:      audit.ActionVerificationFailed,
			Result:      audit.ResultFailure,
			CreatedAt:   time.Now(),
		}
	}
	require.NoError(t, storage.StoreBatch(ctx, batch))

	var n int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM audit_events WHERE principal_id = $1`, principal).Scan(&n))
	assert.Equal(t, 4, n)
}
