package handlers

import (
	"net/http"
	"time"

	"flowlytix/internal/tenant"

	"github.com/labstack/echo/v4"
)

// HealthHandlers exposes liveness and pool observability endpoints
type HealthHandlers struct {
	pool    *tenant.Pool
	version string
}

func NewHealthHandlers(pool *tenant.Pool, version string) *HealthHandlers {
	return &HealthHandlers{pool: pool, version: version}
}

// Health returns service liveness
func (h *HealthHandlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   h.version,
		"timestamp": time.Now().UTC(),
	})
}

// PoolStats returns tenant connection pool counters
func (h *HealthHandlers) PoolStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.pool.Stats())
}
