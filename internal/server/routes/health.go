package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthRoutes registers liveness probes.
type HealthRoutes struct{}

// RegisterRoutes registers health endpoints.
func (HealthRoutes) RegisterRoutes(s *echo.Echo) {
	s.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
