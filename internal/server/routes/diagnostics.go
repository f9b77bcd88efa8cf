package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/fr0stylo/ciattest/internal/attest"
)

// DiagnosticRoutes exposes a manual trigger that attests an arbitrary job
// without handing the result to the registry.
type DiagnosticRoutes struct {
	attester Attester
	limit    rate.Limit
}

// NewDiagnosticRoutes constructs diagnostic routes limited to rps requests per
// second per client.
func NewDiagnosticRoutes(attester Attester, rps float64) *DiagnosticRoutes {
	if rps <= 0 {
		rps = 1
	}
	return &DiagnosticRoutes{attester: attester, limit: rate.Limit(rps)}
}

// RegisterRoutes registers diagnostic endpoints.
func (d *DiagnosticRoutes) RegisterRoutes(s *echo.Echo) {
	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(d.limit),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		},
	})
	s.GET("/test/:jobNumber", d.handleInspect, limiter)
}

func (d *DiagnosticRoutes) handleInspect(c echo.Context) error {
	jobNumber, err := strconv.Atoi(c.Param("jobNumber"))
	if err != nil || jobNumber <= 0 {
		return errorResponse(c, attest.ErrorBadRequest)
	}

	attestation, err := d.attester.Inspect(c.Request().Context(), jobNumber)
	if err != nil {
		return errorResponse(c, attest.ClassifyError(err))
	}
	return c.JSON(http.StatusOK, attestation)
}
