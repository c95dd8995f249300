// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool with retries, Migrate applies goose migrations
// from an fs.FS (the schema for this module is embedded in internal/db/migrations),
// and Healthcheck returns a probe suitable for readiness endpoints.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, slog.Default()); err != nil {
//		return err
//	}
//
// IsNotFoundError, IsDuplicateKeyError and IsSerializationFailure classify
// errors returned by pgx.
package pg
