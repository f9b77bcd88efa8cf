// Package app wires configuration into a ready attestation pipeline.
package app

import (
	"log/slog"
	"net/http"

	"github.com/fr0stylo/ciattest/internal/attest"
	"github.com/fr0stylo/ciattest/internal/circleci"
	"github.com/fr0stylo/ciattest/internal/config"
	"github.com/fr0stylo/ciattest/internal/observability"
	"github.com/fr0stylo/ciattest/internal/registry"
)

// App holds the long-lived collaborators shared by the server and CLI tools.
type App struct {
	Config   config.Config
	CircleCI circleci.Client
	Spool    *registry.Spool
	Sinks    registry.Multi
	Pipeline *attest.Pipeline
}

// New builds the CircleCI client, registry sinks and pipeline for cfg.
func New(cfg config.Config, log *slog.Logger) (*App, error) {
	httpClient := &http.Client{
		Timeout:   cfg.CircleCI.HTTPTimeout,
		Transport: observability.InstrumentTransport(nil),
	}

	client := circleci.Client{
		BaseURL:          cfg.CircleCI.BaseURL,
		ProjectSlug:      cfg.CircleCI.ProjectSlug,
		Token:            cfg.CircleCI.APIKey,
		Timeout:          cfg.CircleCI.HTTPTimeout,
		HTTPClient:       httpClient,
		Retries:          cfg.CircleCI.FetchRetries,
		RetryBackoff:     cfg.CircleCI.RetryBackoff,
		MaxArtifactBytes: cfg.Attest.MaxArtifactBytes,
	}

	spool, err := registry.NewSpool(cfg.Registry.CacheDir)
	if err != nil {
		return nil, err
	}
	sinks := registry.Multi{spool}
	if cfg.PublisherEnabled() {
		sinks = append(sinks, registry.Publisher{
			Endpoint:   cfg.Registry.Endpoint,
			Token:      cfg.Registry.AuthToken,
			Secret:     cfg.Registry.Secret,
			Source:     cfg.Registry.EventSource,
			Timeout:    cfg.CircleCI.HTTPTimeout,
			HTTPClient: httpClient,
		})
		log.Info("Registry publisher enabled", "endpoint", cfg.Registry.Endpoint)
	}

	pipeline := attest.NewPipeline(attest.Config{
		WebhookSecret:  cfg.CircleCI.WebhookSecret,
		JobName:        cfg.CircleCI.JobName,
		ProjectSlug:    cfg.CircleCI.ProjectSlug,
		BinaryPath:     cfg.Attest.BinaryPath,
		RequestTimeout: cfg.Attest.RequestTimeout,
	}, client, sinks, log)

	return &App{
		Config:   cfg,
		CircleCI: client,
		Spool:    spool,
		Sinks:    sinks,
		Pipeline: pipeline,
	}, nil
}
