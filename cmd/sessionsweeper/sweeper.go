package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/elevate/pkg/adminsession"
	"github.com/dmitrymomot/elevate/pkg/logger"
)

type expirer interface {
	Expire(ctx context.Context, maxAge time.Duration) ([]adminsession.Session, error)
}

// sweep expires stale sessions every interval until ctx is done.
// A failed pass is logged and retried on the next tick.
func sweep(ctx context.Context, m expirer, interval, maxAge time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweepOnce(ctx, m, maxAge, log)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, m expirer, maxAge time.Duration, log *slog.Logger) int {
	start := time.Now()
	expired, err := m.Expire(ctx, maxAge)
	if err != nil {
		if ctx.Err() == nil {
			log.ErrorContext(ctx, "session sweep failed", logger.Error(err))
		}
		return 0
	}

	if len(expired) > 0 {
		log.InfoContext(ctx, "expired admin sessions",
			slog.Int("count", len(expired)),
			logger.Duration(time.Since(start)),
		)
	}
	return len(expired)
}
