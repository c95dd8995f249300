// Command sessionsweeper ends admin sessions that outlived ADMIN_SESSION_MAX_AGE.
// It applies the database migrations on start and records every expiry in the
// audit log.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/elevate/internal/bootstrap"
	"github.com/dmitrymomot/elevate/pkg/config"
	"github.com/dmitrymomot/elevate/pkg/logger"
)

type sweeperConfig struct {
	HealthInterval time.Duration `env:"HEALTHCHECK_INTERVAL" envDefault:"30s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("sessionsweeper stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg sweeperConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	app, err := bootstrap.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			app.Log.Error("shutdown incomplete", logger.Error(cerr))
		}
	}()

	log := app.Log.With(logger.Component("sessionsweeper"))
	sessions := app.Sessions.Config()

	log.InfoContext(ctx, "sessionsweeper started",
		slog.Duration("interval", sessions.SweepInterval),
		slog.Duration("max_age", sessions.MaxAge),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweep(gctx, app.Sessions, sessions.SweepInterval, sessions.MaxAge, log)
	})
	g.Go(func() error {
		return watchHealth(gctx, app.Checks, cfg.HealthInterval, log)
	})

	err = g.Wait()
	log.Info("sessionsweeper stopping")
	return err
}

// watchHealth logs dependency outages and recoveries. It never stops the
// sweeper: a failed pass is retried on the next tick anyway.
func watchHealth(ctx context.Context, checks map[string]func(context.Context) error, interval time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := make(map[string]bool, len(checks))
	for name := range checks {
		healthy[name] = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for name, check := range checks {
			err := check(ctx)
			switch {
			case err != nil && healthy[name]:
				log.WarnContext(ctx, "dependency unhealthy", slog.String("dependency", name), logger.Error(err))
			case err == nil && !healthy[name]:
				log.InfoContext(ctx, "dependency recovered", slog.String("dependency", name))
			}
			healthy[name] = err == nil
		}
	}
}
