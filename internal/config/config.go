package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	CircleCI      CircleCIConfig
	Attest        AttestConfig
	Registry      RegistryConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port int
	// MaxWebhookBody is an echo body limit such as "32K".
	MaxWebhookBody string
	DiagnosticRPS  float64
}

type CircleCIConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	JobName       string
	ProjectSlug   string
	HTTPTimeout   time.Duration
	FetchRetries  uint64
	RetryBackoff  time.Duration
}

type AttestConfig struct {
	BinaryPath       string
	RequestTimeout   time.Duration
	MaxArtifactBytes int64
}

type RegistryConfig struct {
	CacheDir    string
	Endpoint    string
	AuthToken   string
	Secret      string
	EventSource string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ObservabilityConfig struct {
	OTLPEndpoint     string
	OTLPTraceHeaders map[string]string
	ServiceName      string
	ServiceVer       string
	SamplingRatio    float64
}

type requirement struct {
	env   string
	value string
}

func Load() (Config, error) {
	return load(true)
}

// LoadForTool loads config for CLI tools that never verify webhook signatures.
func LoadForTool() (Config, error) {
	return load(false)
}

func load(requireWebhookSecret bool) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("attest_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("port", 8000)
	v.SetDefault("registry_cache_dir", "")
	v.SetDefault("registry_endpoint", "")
	v.SetDefault("registry_auth_token", "")
	v.SetDefault("registry_webhook_secret", "")
	v.SetDefault("circleci_api_url", "https://circleci.com")
	v.SetDefault("circleci_api_key", "")
	v.SetDefault("circleci_webhook_secret", "")
	v.SetDefault("circleci_job_name", "")
	v.SetDefault("circleci_project_slug", "")
	v.SetDefault("attest_binary_path", "out/out.wasm")
	v.SetDefault("attest_request_timeout", "30s")
	v.SetDefault("attest_http_timeout", "15s")
	v.SetDefault("attest_max_webhook_body", "32K")
	v.SetDefault("attest_max_artifact_bytes", "64Mi")
	v.SetDefault("attest_fetch_retries", 0)
	v.SetDefault("attest_retry_backoff", "500ms")
	v.SetDefault("attest_diagnostic_rps", 1.0)
	v.SetDefault("attest_log_level", "info")
	v.SetDefault("attest_log_format", "text")
	v.SetDefault("attest_event_source", "circleci/attest")
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("otel_exporter_otlp_traces_headers", "")
	v.SetDefault("otel_service_name", "ciattest")
	v.SetDefault("attest_version", "dev")
	v.SetDefault("attest_otel_sampling_ratio", 1.0)

	port := v.GetInt("port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT: %d", port)
	}

	requestTimeout, err := positiveDuration(v, "attest_request_timeout")
	if err != nil {
		return Config{}, err
	}
	httpTimeout, err := positiveDuration(v, "attest_http_timeout")
	if err != nil {
		return Config{}, err
	}
	retryBackoff, err := positiveDuration(v, "attest_retry_backoff")
	if err != nil {
		return Config{}, err
	}

	maxBody := strings.TrimSpace(v.GetString("attest_max_webhook_body"))
	if n, err := bytes.Parse(maxBody); err != nil || n <= 0 {
		return Config{}, fmt.Errorf("invalid ATTEST_MAX_WEBHOOK_BODY: %q", maxBody)
	}
	maxArtifact, err := bytes.Parse(strings.TrimSpace(v.GetString("attest_max_artifact_bytes")))
	if err != nil || maxArtifact <= 0 {
		return Config{}, fmt.Errorf("invalid ATTEST_MAX_ARTIFACT_BYTES: %q", v.GetString("attest_max_artifact_bytes"))
	}

	retries := v.GetInt("attest_fetch_retries")
	if retries < 0 {
		retries = 0
	}
	if retries > 10 {
		retries = 10
	}

	rps := v.GetFloat64("attest_diagnostic_rps")
	if rps <= 0 {
		rps = 1
	}

	samplingRatio := v.GetFloat64("attest_otel_sampling_ratio")
	if samplingRatio < 0 {
		samplingRatio = 0
	}
	if samplingRatio > 1 {
		samplingRatio = 1
	}

	serviceName := strings.TrimSpace(v.GetString("otel_service_name"))
	if serviceName == "" {
		serviceName = "ciattest"
	}
	serviceVersion := strings.TrimSpace(v.GetString("attest_version"))
	if serviceVersion == "" {
		serviceVersion = "dev"
	}

	cfg := Config{
		Environment: resolveEnvironment(v),
		Server: ServerConfig{
			Port:           port,
			MaxWebhookBody: maxBody,
			DiagnosticRPS:  rps,
		},
		CircleCI: CircleCIConfig{
			BaseURL:       strings.TrimRight(strings.TrimSpace(v.GetString("circleci_api_url")), "/"),
			APIKey:        strings.TrimSpace(v.GetString("circleci_api_key")),
			WebhookSecret: strings.TrimSpace(v.GetString("circleci_webhook_secret")),
			JobName:       strings.TrimSpace(v.GetString("circleci_job_name")),
			ProjectSlug:   strings.Trim(strings.TrimSpace(v.GetString("circleci_project_slug")), "/"),
			HTTPTimeout:   httpTimeout,
			FetchRetries:  uint64(retries),
			RetryBackoff:  retryBackoff,
		},
		Attest: AttestConfig{
			BinaryPath:       strings.TrimSpace(v.GetString("attest_binary_path")),
			RequestTimeout:   requestTimeout,
			MaxArtifactBytes: maxArtifact,
		},
		Registry: RegistryConfig{
			CacheDir:    strings.TrimSpace(v.GetString("registry_cache_dir")),
			Endpoint:    strings.TrimSpace(v.GetString("registry_endpoint")),
			AuthToken:   strings.TrimSpace(v.GetString("registry_auth_token")),
			Secret:      strings.TrimSpace(v.GetString("registry_webhook_secret")),
			EventSource: strings.TrimSpace(v.GetString("attest_event_source")),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString("attest_log_level"))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("attest_log_format"))),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")),
			OTLPTraceHeaders: mergeHeaderMaps(
				parseOTLPHeaders(v.GetString("otel_exporter_otlp_headers")),
				parseOTLPHeaders(v.GetString("otel_exporter_otlp_traces_headers")),
			),
			ServiceName:   serviceName,
			ServiceVer:    serviceVersion,
			SamplingRatio: samplingRatio,
		},
	}

	if cfg.Attest.BinaryPath == "" {
		cfg.Attest.BinaryPath = "out/out.wasm"
	}

	required := []requirement{
		{"REGISTRY_CACHE_DIR", cfg.Registry.CacheDir},
		{"CIRCLECI_API_KEY", cfg.CircleCI.APIKey},
		{"CIRCLECI_JOB_NAME", cfg.CircleCI.JobName},
		{"CIRCLECI_PROJECT_SLUG", cfg.CircleCI.ProjectSlug},
	}
	if requireWebhookSecret {
		required = append(required, requirement{"CIRCLECI_WEBHOOK_SECRET", cfg.CircleCI.WebhookSecret})
	}
	if cfg.Registry.Endpoint != "" {
		required = append(required,
			requirement{"REGISTRY_AUTH_TOKEN", cfg.Registry.AuthToken},
			requirement{"REGISTRY_WEBHOOK_SECRET", cfg.Registry.Secret},
		)
	}
	var missing []string
	for _, item := range required {
		if item.value == "" {
			missing = append(missing, item.env)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// PublisherEnabled reports whether CDEvents should be sent to a registry.
// Load guarantees the token and secret are set whenever this is true.
func (c Config) PublisherEnabled() bool {
	return c.Registry.Endpoint != ""
}

func positiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	d := v.GetDuration(key)
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), v.GetString(key))
	}
	return d, nil
}

func parseOTLPHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"attest_env", "app_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
