package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REGISTRY_CACHE_DIR", t.TempDir())
	t.Setenv("CIRCLECI_WEBHOOK_SECRET", "s3cret")
	t.Setenv("CIRCLECI_API_KEY", "token")
	t.Setenv("CIRCLECI_JOB_NAME", "build-wasm")
	t.Setenv("CIRCLECI_PROJECT_SLUG", "gh/acme/widget/")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxWebhookBody != "32K" {
		t.Fatalf("expected default body limit 32K, got %q", cfg.Server.MaxWebhookBody)
	}
	if cfg.CircleCI.BaseURL != "https://circleci.com" {
		t.Fatalf("unexpected base url: %s", cfg.CircleCI.BaseURL)
	}
	if cfg.CircleCI.ProjectSlug != "gh/acme/widget" {
		t.Fatalf("expected trimmed slug, got %q", cfg.CircleCI.ProjectSlug)
	}
	if cfg.Attest.BinaryPath != "out/out.wasm" {
		t.Fatalf("unexpected binary path: %s", cfg.Attest.BinaryPath)
	}
	if cfg.Attest.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected request timeout: %s", cfg.Attest.RequestTimeout)
	}
	if cfg.Attest.MaxArtifactBytes != 64<<20 {
		t.Fatalf("unexpected max artifact bytes: %d", cfg.Attest.MaxArtifactBytes)
	}
	if cfg.CircleCI.FetchRetries != 0 {
		t.Fatalf("expected no retries by default, got %d", cfg.CircleCI.FetchRetries)
	}
	if cfg.PublisherEnabled() {
		t.Fatal("expected publisher disabled without endpoint")
	}
}

func TestLoadReportsMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("CIRCLECI_API_KEY", "")
	t.Setenv("CIRCLECI_WEBHOOK_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing env")
	}
	for _, name := range []string{"CIRCLECI_API_KEY", "CIRCLECI_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in error, got %v", name, err)
		}
	}
}

func TestLoadForToolAllowsMissingWebhookSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("CIRCLECI_WEBHOOK_SECRET", "")

	cfg, err := LoadForTool()
	if err != nil {
		t.Fatalf("expected no error for tool config load, got %v", err)
	}
	if cfg.CircleCI.WebhookSecret != "" {
		t.Fatalf("expected empty webhook secret, got %q", cfg.CircleCI.WebhookSecret)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                    "70000",
		"ATTEST_REQUEST_TIMEOUT":  "soon",
		"ATTEST_MAX_WEBHOOK_BODY": "lots",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadParsesOTLPHeadersAndOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer common,x-org=abc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_HEADERS", "x-org=trace-only")
	t.Setenv("ATTEST_FETCH_RETRIES", "3")
	t.Setenv("ATTEST_OTEL_SAMPLING_RATIO", "4")
	t.Setenv("REGISTRY_ENDPOINT", "https://registry.example")
	t.Setenv("REGISTRY_AUTH_TOKEN", "registry-token")
	t.Setenv("REGISTRY_WEBHOOK_SECRET", "registry-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Observability.OTLPTraceHeaders["authorization"] != "Bearer common" {
		t.Fatalf("expected common header in trace headers, got %#v", cfg.Observability.OTLPTraceHeaders)
	}
	if cfg.Observability.OTLPTraceHeaders["x-org"] != "trace-only" {
		t.Fatalf("expected trace-specific override, got %#v", cfg.Observability.OTLPTraceHeaders)
	}
	if cfg.Observability.SamplingRatio != 1 {
		t.Fatalf("expected clamped sampling ratio, got %v", cfg.Observability.SamplingRatio)
	}
	if cfg.CircleCI.FetchRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.CircleCI.FetchRetries)
	}
	if !cfg.PublisherEnabled() {
		t.Fatal("expected publisher enabled with endpoint")
	}
}

func TestLoadRejectsPartialPublisherConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("REGISTRY_ENDPOINT", "https://registry.example")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for endpoint without credentials")
	}
	for _, name := range []string{"REGISTRY_AUTH_TOKEN", "REGISTRY_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in error, got %v", name, err)
		}
	}

	t.Setenv("REGISTRY_AUTH_TOKEN", "registry-token")
	_, err = LoadForTool()
	if err == nil || !strings.Contains(err.Error(), "REGISTRY_WEBHOOK_SECRET") {
		t.Fatalf("expected missing registry secret, got %v", err)
	}
	if strings.Contains(err.Error(), "REGISTRY_AUTH_TOKEN") {
		t.Fatalf("token is set, got %v", err)
	}
}
