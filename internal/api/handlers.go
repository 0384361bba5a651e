package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cropguide/backend/pkg/models"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "cropguide"

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the unauthenticated operational endpoints.
type Handler struct {
	store   Pinger
	version string
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(store Pinger, version string) *Handler {
	return &Handler{store: store, version: version}
}

// HandleHealth reports service health. It answers 503 when the store is
// unreachable.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := models.HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   ServiceName,
		Version:   h.version,
		Checks:    map[string]string{"store": "ok"},
	}
	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Checks["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
