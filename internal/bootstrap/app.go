// Package bootstrap assembles the components from environment configuration.
// Both binaries use it so they share one wiring of storage, audit and logging.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/elevate/internal/db/migrations"
	"github.com/dmitrymomot/elevate/pkg/adminsession"
	"github.com/dmitrymomot/elevate/pkg/audit"
	"github.com/dmitrymomot/elevate/pkg/config"
	"github.com/dmitrymomot/elevate/pkg/enrollment"
	"github.com/dmitrymomot/elevate/pkg/logger"
	"github.com/dmitrymomot/elevate/pkg/mongo"
	"github.com/dmitrymomot/elevate/pkg/pg"
	"github.com/dmitrymomot/elevate/pkg/pgstore"
	"github.com/dmitrymomot/elevate/pkg/ratelimiter"
	"github.com/dmitrymomot/elevate/pkg/redis"
	"github.com/dmitrymomot/elevate/pkg/replay"
	"github.com/dmitrymomot/elevate/pkg/totp"
	"github.com/dmitrymomot/elevate/svc/elevation"
)

// App owns the process-wide resources. Close releases them in reverse order.
type App struct {
	Config   Config
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Audit    *audit.Logger
	Sessions *adminsession.Manager

	// Checks are readiness probes keyed by dependency name.
	Checks map[string]func(context.Context) error

	redis   *goredis.Client
	closers []func(context.Context) error
}

// Open loads configuration, sets up logging, connects to PostgreSQL, applies
// migrations and starts the audit logger.
func Open(ctx context.Context) (*App, error) {
	var (
		cfg        Config
		logCfg     logger.Config
		pgCfg      pg.Config
		sessionCfg adminsession.Config
	)
	if err := errors.Join(
		config.Load(&cfg),
		config.Load(&logCfg),
		config.Load(&pgCfg),
		config.Load(&sessionCfg),
	); err != nil {
		return nil, err
	}

	log, err := logger.NewFromConfig(logCfg)
	if err != nil {
		return nil, err
	}
	logger.SetAsDefault(log)

	a := &App{Config: cfg, Log: log, Checks: make(map[string]func(context.Context) error)}

	a.Pool, err = pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { a.Pool.Close(); return nil })
	a.Checks["postgres"] = pg.Healthcheck(a.Pool)

	if err := pg.Migrate(ctx, a.Pool, migrations.FS, pgCfg, log); err != nil {
		return nil, a.fail(err)
	}

	storage, err := a.auditStorage(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Audit = audit.NewLogger(storage,
		audit.WithAsync(cfg.AuditBufferSize),
		audit.WithBatching(cfg.AuditBatchSize, cfg.AuditFlushInterval),
		audit.WithLogger(log),
		audit.WithRequestIDExtractor(logger.RequestIDFromContext),
	)
	a.onClose(func(ctx context.Context) error {
		if err := a.Audit.Close(ctx); err != nil {
			return fmt.Errorf("audit log not flushed, %d events dropped: %w", a.Audit.Dropped(), err)
		}
		return nil
	})

	a.Sessions = adminsession.NewManager(pgstore.NewSessions(a.Pool),
		adminsession.WithConfig(sessionCfg),
		adminsession.WithLogger(log),
		adminsession.WithAuditor(a.Audit),
	)
	return a, nil
}

// Elevation builds the enrollment provisioner and the elevation service.
// It needs TOTP_ENCRYPTION_KEY and, for REPLAY_BACKEND=redis or a shared
// rate limiter, a reachable REDIS_URL.
func (a *App) Elevation(ctx context.Context) (*enrollment.Provisioner, *elevation.Service, error) {
	var (
		totpCfg      totp.Config
		sealerCfg    totp.SealerConfig
		elevationCfg elevation.Config
		limitCfg     ratelimiter.Config
	)
	if err := errors.Join(
		config.Load(&totpCfg),
		config.Load(&sealerCfg),
		config.Load(&elevationCfg),
		config.Load(&limitCfg),
	); err != nil {
		return nil, nil, err
	}
	if err := totpCfg.Validate(); err != nil {
		return nil, nil, err
	}

	sealer, err := totp.NewSealerFromConfig(sealerCfg)
	if err != nil {
		return nil, nil, err
	}
	secrets := pgstore.NewSecrets(a.Pool, sealer)

	var replayStore replay.Store = secrets
	if a.Config.ReplayBackend == "redis" {
		client, prefix, err := a.redisClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		replayStore = replay.NewRedisStore(client, replay.WithKeyPrefix(prefix))
	}
	guard := replay.NewGuard(replayStore,
		replay.WithStorageTimeout(elevationCfg.StorageTimeout),
		replay.WithLogger(a.Log),
	)

	provisioner := enrollment.NewProvisioner(secrets, a.Config.Issuer,
		enrollment.WithGuard(guard),
		enrollment.WithTOTPConfig(totpCfg),
		enrollment.WithStorageTimeout(elevationCfg.StorageTimeout),
		enrollment.WithLogger(a.Log),
		enrollment.WithAuditor(a.Audit),
	)

	opts := []elevation.Option{
		elevation.WithConfig(elevationCfg),
		elevation.WithTOTPConfig(totpCfg),
		elevation.WithLogger(a.Log),
		elevation.WithAuditor(a.Audit),
	}
	if a.Config.RateLimit {
		limiter, err := a.limiter(ctx, limitCfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, elevation.WithLimiter(limiter))
	}

	return provisioner, elevation.New(secrets, guard, a.Sessions, opts...), nil
}

// Close flushes the audit log and releases connections.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		errs = append(errs, fn(ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) fail(err error) error {
	return errors.Join(err, a.Close())
}

func (a *App) auditStorage(ctx context.Context) (audit.Storage, error) {
	if a.Config.AuditSink != "mongo" {
		return pgstore.NewAuditStorage(a.Pool), nil
	}

	var cfg mongo.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	db, err := mongo.NewWithDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.onClose(func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
	a.Checks["mongo"] = mongo.Healthcheck(db.Client())

	storage := mongo.NewAuditStorage(db.Collection(cfg.AuditCollection))
	if err := storage.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return storage, nil
}

// redisClient connects once and returns the client with the replay key prefix.
func (a *App) redisClient(ctx context.Context) (*goredis.Client, string, error) {
	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return nil, "", err
	}
	if a.redis != nil {
		return a.redis, cfg.KeyPrefix, nil
	}

	client, err := redis.Connect(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	a.redis = client
	a.onClose(func(context.Context) error { return client.Close() })
	a.Checks["redis"] = redis.Healthcheck(client)
	return client, cfg.KeyPrefix, nil
}

// limiter shares attempt budgets through Redis when Redis is in use and keeps
// them in memory otherwise.
func (a *App) limiter(ctx context.Context, cfg ratelimiter.Config) (*ratelimiter.Bucket, error) {
	if a.Config.ReplayBackend == "redis" {
		client, _, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return ratelimiter.NewBucket(ratelimiter.NewRedisStore(client, ""), cfg)
	}

	store := ratelimiter.NewMemoryStore()
	a.onClose(func(context.Context) error { store.Close(); return nil })
	return ratelimiter.NewBucket(store, cfg)
}
