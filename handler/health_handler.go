// ABOUTME: Health endpoint reporting cache and store reachability
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger is the reachability check a dependency exposes.
type Pinger func(ctx context.Context) error

type healthHandler struct {
	checks map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates the health handler over named dependency checks.
func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &healthHandler{
		checks: checks,
		logger: logger,
	}
}

// Check pings every dependency. The service stays up on dependency failure
// because every tier has a fallback, so a failed ping reports degraded
// rather than unavailable.
func (h *healthHandler) Check(c echo.Context) error {
	ctx := c.Request().Context()
	status := "healthy"
	deps := make(map[string]string, len(h.checks))

	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency health check failed",
				"dependency", name,
				"error", err)
			deps[name] = "unreachable"
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":       status,
		"dependencies": deps,
	})
}
