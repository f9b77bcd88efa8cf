package routes

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fr0stylo/ciattest/internal/attest"
)

// Attester runs the attestation pipeline.
type Attester interface {
	Handle(ctx context.Context, headers http.Header, body []byte) (attest.Attestation, error)
	Inspect(ctx context.Context, jobNumber int) (attest.Attestation, error)
}

// WebhookRoutes registers the CircleCI webhook endpoint.
type WebhookRoutes struct {
	attester  Attester
	bodyLimit string
}

// NewWebhookRoutes constructs webhook routes. bodyLimit uses echo size units.
func NewWebhookRoutes(attester Attester, bodyLimit string) *WebhookRoutes {
	if bodyLimit == "" {
		bodyLimit = "32K"
	}
	return &WebhookRoutes{attester: attester, bodyLimit: bodyLimit}
}

// RegisterRoutes registers webhook endpoints.
func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.POST("/webhook", w.handleWebhook, middleware.BodyLimit(w.bodyLimit))
}

func (w *WebhookRoutes) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return errorResponse(c, attest.ErrorBadRequest)
	}

	attestation, err := w.attester.Handle(c.Request().Context(), c.Request().Header, body)
	if err != nil {
		return errorResponse(c, attest.ClassifyError(err))
	}
	return c.JSON(http.StatusOK, attestation)
}

func errorResponse(c echo.Context, kind attest.ErrorKind) error {
	return c.JSON(kind.StatusCode(), map[string]string{"error": kind.PublicMessage()})
}
