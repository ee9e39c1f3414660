package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcoot/dealgame/internal/api"
	"github.com/mcoot/dealgame/internal/config"
	"github.com/mcoot/dealgame/internal/factory"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, logger)
	stop()
	os.Exit(code)
}

// run serves until ctx is done or the server fails and returns the exit
// code. The application is closed on every path.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	appCfg := cfg.App
	appCfg.Logger = logger

	app, err := factory.New(appCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close application", slog.String("error", err.Error()))
			return
		}
		logger.Info("application closed")
	}()

	router := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		Verifier:       app.Verifier,
		GameController: app.GameController,
		Feed:           app.Feed,
	})

	server := api.NewServer(router, cfg.Server, logger)
	server.RegisterOnShutdown(app.Feed.Close)

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go cleanupFeedHubs(cleanupCtx, app, cfg.FeedCleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", storageName(appCfg.StorageType)),
		slog.Bool("payments", appCfg.Payment != nil))

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// cleanupFeedHubs stops hubs nobody is watching any more
func cleanupFeedHubs(ctx context.Context, app *factory.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.Feed.CleanupEmptyHubs()
		}
	}
}

func storageName(storageType string) string {
	if storageType == "" {
		return factory.StorageTypeMemory
	}
	return storageType
}
