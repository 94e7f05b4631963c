package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvidal/trellis/internal/actions"
	"github.com/mvidal/trellis/internal/catalog"
	"github.com/mvidal/trellis/internal/engine"
	"github.com/mvidal/trellis/internal/logging"
	"github.com/mvidal/trellis/internal/scheduler"
	"github.com/mvidal/trellis/internal/server"
	"github.com/mvidal/trellis/internal/validation"
)

func main() {
	cfg := loadConfig()

	base := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(parseLogLevel(cfg.LogLevel)),
	})
	logger := slog.New(logging.NewCorrelationHandler(base))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	registry := actions.NewRegistry()
	if err := actions.RegisterBuiltins(registry, actions.HTTPConfig{
		NetworkTimeout: time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond,
	}); err != nil {
		return err
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}

	cat := catalog.New(validator)
	if err := cat.LoadDir(cfg.CatalogDir); err != nil {
		return err
	}
	logger.Info("catalog loaded", "workflows", cat.Len(), "dir", cfg.CatalogDir)

	runner := engine.NewRunner(registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler {
		sched := scheduler.New(cat, runner, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := server.New(cfg.ListenAddr, server.Deps{
		Catalog:  cat,
		Registry: registry,
		Runner:   runner,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
