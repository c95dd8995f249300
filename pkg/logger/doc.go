// Package logger builds slog loggers with per-environment defaults and
// attributes pulled from the context of each call.
//
//	log, err := logger.NewFromConfig(cfg)
//	if err != nil {
//		return err
//	}
//	logger.SetAsDefault(log)
//
//	ctx = logger.WithRequestID(ctx, "req-1")
//	log.InfoContext(ctx, "admin session started",
//		logger.PrincipalID("admin-1"),
//		logger.Component("adminsession"),
//	)
//
// Attribute helpers keep key names consistent across packages. Secrets, codes
// and counters are never logged.
package logger
