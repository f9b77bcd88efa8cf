package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fr0stylo/ciattest/internal/app"
	"github.com/fr0stylo/ciattest/internal/config"
	"github.com/fr0stylo/ciattest/internal/observability"
	"github.com/fr0stylo/ciattest/internal/server"
	"github.com/fr0stylo/ciattest/internal/server/routes"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	log := observability.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOpenTelemetry(ctx, log, observability.OpenTelemetryConfig{
		OTLPEndpoint:  cfg.Observability.OTLPEndpoint,
		OTLPHeaders:   cfg.Observability.OTLPTraceHeaders,
		ServiceName:   cfg.Observability.ServiceName,
		ServiceVer:    cfg.Observability.ServiceVer,
		SamplingRatio: cfg.Observability.SamplingRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error("Failed to flush traces", "error", err)
		}
	}()

	attester, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	srv := server.New(log, cfg.Observability.ServiceName)
	srv.RegisterRouter(routes.HealthRoutes{})
	srv.RegisterRouter(routes.NewWebhookRoutes(attester.Pipeline, cfg.Server.MaxWebhookBody))
	srv.RegisterRouter(routes.NewDiagnosticRoutes(attester.Pipeline, cfg.Server.DiagnosticRPS))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
			"project", cfg.CircleCI.ProjectSlug,
			"job", cfg.CircleCI.JobName,
			"cache_dir", cfg.Registry.CacheDir,
		)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
