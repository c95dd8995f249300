// Package audit records security-relevant events such as enrollment, failed
// verifications, replay rejections and admin session transitions.
//
// Recording is fire-and-forget: Logger.Record has no error return, and a slow
// or failing Storage never changes the outcome of the operation being audited.
// In async mode events are buffered and flushed in batches by a single worker;
// when the buffer is full events are dropped and counted rather than blocking.
//
// Basic usage:
//
//	log := audit.NewLogger(audit.NewSlogStorage(slog.Default()), audit.WithAsync(1024))
//	defer log.Close(ctx)
//
//	log.Record(ctx, audit.ActionReplayRejected,
//		audit.WithPrincipal("admin-1"),
//		audit.WithResult(audit.ResultFailure),
//	)
//
// Storage backends live next to their drivers: pgstore.AuditStorage writes to
// PostgreSQL with COPY, mongo.AuditStorage writes to a MongoDB collection.
package audit
