package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"

	"news-enricher/utils/logger"
)

// Run is the main application entry point. It initializes all dependencies,
// starts the queue, scheduler, and HTTP server, then waits for a shutdown
// signal.
func Run(ctx context.Context) error {
	log := logger.Init()

	log.Info("Starting news-enricher service")

	deps, cleanup, err := BuildDependencies(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer cleanup()

	deps.Queue.Start(ctx)
	deps.Scheduler.Start(ctx)

	// The boot-time backfill fills sections whose gates are still closed so
	// the cache lists become servable before the rotation loop settles in.
	go func() {
		if err := deps.Scheduler.RunBackfill(ctx); err != nil {
			log.Warn("threshold backfill aborted", "error", err)
		}
	}()

	httpServer := NewHTTPServer(deps)
	StartHTTPServer(httpServer, deps.Config.Server.Port, log)

	log.Info("news-enricher service started",
		"port", deps.Config.Server.Port,
		"rotation_period", deps.Config.Scheduler.RotationPeriod,
		"cache_shards", len(deps.Config.Cache.Shards))

	waitForShutdown(httpServer, deps, log)
	return nil
}

func waitForShutdown(httpServer *echo.Echo, deps *Dependencies, log *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down news-enricher service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	// Stop the scheduler before the queue so no new work is submitted while
	// the queue drains its active jobs.
	deps.Scheduler.Stop()
	deps.Queue.Stop()

	log.Info("news-enricher service stopped")
}
