package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/herald/internal/middleware"
)

// HealthHandler reports service liveness and, when a ping function is set,
// broker reachability.
type HealthHandler struct {
	version string
	ping    func(ctx context.Context) error
}

// NewHealthHandler creates a health handler. ping may be nil.
func NewHealthHandler(version string, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{version: version, ping: ping}
}

// Check handles GET /health.
func (h *HealthHandler) Check(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	if h.ping == nil {
		return c.JSON(http.StatusOK, resp)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.ping(ctx); err != nil {
		middleware.FromContext(c.Request().Context()).Warn("Broker health check failed", "error", err)
		resp.Status = "degraded"
		resp.Broker = "unreachable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp.Broker = "ok"
	return c.JSON(http.StatusOK, resp)
}
