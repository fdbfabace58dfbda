// ABOUTME: Stats endpoints exposing queue, credential, shard, gate, and
// ABOUTME: rotation snapshots for dashboards and debugging
package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"news-enricher/balancer"
	"news-enricher/cache"
	"news-enricher/queue"
	"news-enricher/service"
)

type statsHandler struct {
	jobs      *queue.Queue
	pools     map[string]*balancer.KeyPool
	cache     *cache.TieredCache
	gate      service.GateService
	scheduler service.SchedulerService
	logger    *slog.Logger
}

// NewStatsHandler creates the stats handler over the pipeline components.
func NewStatsHandler(jobs *queue.Queue, pools map[string]*balancer.KeyPool, tiered *cache.TieredCache, gate service.GateService, scheduler service.SchedulerService, logger *slog.Logger) StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &statsHandler{
		jobs:      jobs,
		pools:     pools,
		cache:     tiered,
		gate:      gate,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Queue returns the job queue snapshot.
func (h *statsHandler) Queue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.Stats())
}

// Keys returns every key pool's credential usage.
func (h *statsHandler) Keys(c echo.Context) error {
	out := make(map[string]balancer.Stats, len(h.pools))
	for name, pool := range h.pools {
		out[name] = pool.Stats()
	}
	return c.JSON(http.StatusOK, out)
}

// Shards returns the cache tier snapshot including per-shard usage.
func (h *statsHandler) Shards(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cache.Stats())
}

// Threshold returns every section's gate status.
func (h *statsHandler) Threshold(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gate.Stats(c.Request().Context()))
}

// Rotation returns the scheduler snapshot.
func (h *statsHandler) Rotation(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.Stats())
}
