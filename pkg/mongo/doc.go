// Package mongo connects to MongoDB with the official v2 driver and provides
// AuditStorage, an audit.Storage backend for deployments that keep their audit
// trail in a document store.
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	storage := mongo.NewAuditStorage(db.Collection(cfg.AuditCollection))
//	if err := storage.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//	auditLog := audit.NewLogger(storage, audit.WithAsync(1024))
//
// New retries the initial ping; Healthcheck returns a readiness probe.
package mongo
