package circleci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fr0stylo/ciattest/internal/observability"
)

const (
	// TokenHeader carries the CircleCI API token.
	TokenHeader = "Circle-Token"
	// DefaultBaseURL is the public CircleCI API host.
	DefaultBaseURL = "https://circleci.com"

	defaultTimeout          = 15 * time.Second
	defaultRetryBackoff     = 500 * time.Millisecond
	defaultMaxArtifactBytes = 64 << 20
	maxListBytes            = 4 << 20
)

// Client talks to the CircleCI v2 API for one project.
type Client struct {
	BaseURL          string
	ProjectSlug      string
	Token            string
	Timeout          time.Duration
	HTTPClient       *http.Client
	Retries          uint64
	RetryBackoff     time.Duration
	MaxArtifactBytes int64
}

// ListArtifacts returns the artifact index for jobNumber.
func (c Client) ListArtifacts(ctx context.Context, jobNumber int) (ArtifactIndex, error) {
	ctx, span := observability.StartUpstreamSpan(ctx, "circleci", "list_artifacts",
		attribute.Int("ci.job.number", jobNumber),
	)
	defer span.End()

	index, err := c.listArtifacts(ctx, jobNumber)
	if err != nil {
		err = &ArtifactError{Kind: ErrArtifactList, Job: jobNumber, Err: err}
		span.RecordError(err)
		return nil, err
	}
	return index, nil
}

func (c Client) listArtifacts(ctx context.Context, jobNumber int) (ArtifactIndex, error) {
	slug := strings.Trim(strings.TrimSpace(c.ProjectSlug), "/")
	if slug == "" {
		return nil, errors.New("project slug is required")
	}
	if jobNumber <= 0 {
		return nil, fmt.Errorf("invalid job number %d", jobNumber)
	}

	endpoint := fmt.Sprintf("%s/api/v2/project/%s/%s/artifacts", c.baseURL(), slug, strconv.Itoa(jobNumber))
	body, err := c.get(ctx, endpoint, maxListBytes)
	if err != nil {
		return nil, err
	}

	var payload artifactListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode artifact list: %w", err)
	}
	if payload.Items == nil {
		return nil, errors.New("artifact list has no items")
	}
	return NewArtifactIndex(*payload.Items), nil
}

// Download fetches the body of the artifact stored at path.
func (c Client) Download(ctx context.Context, path, artifactURL string) ([]byte, error) {
	ctx, span := observability.StartUpstreamSpan(ctx, "circleci", "download_artifact",
		attribute.String("ci.artifact.path", path),
	)
	defer span.End()

	job, _ := observability.JobNumberFromContext(ctx)
	body, err := c.get(ctx, artifactURL, c.maxArtifactBytes())
	if err != nil {
		err = &ArtifactError{Kind: ErrArtifactFetch, Job: job, Path: path, Err: err}
		span.RecordError(err)
		return nil, err
	}
	return body, nil
}

func (c Client) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	backoff := retry.WithMaxRetries(c.Retries, retry.NewExponential(c.retryBackoff()))
	return retry.DoValue(ctx, backoff, func(ctx context.Context) ([]byte, error) {
		return c.getOnce(ctx, target, limit)
	})
}

func (c Client) getOnce(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(TokenHeader, c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retry.RetryableError(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := &statusError{StatusCode: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, retry.RetryableError(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return body, nil
}

func (c Client) baseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return DefaultBaseURL
	}
	return base
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c Client) retryBackoff() time.Duration {
	if c.RetryBackoff <= 0 {
		return defaultRetryBackoff
	}
	return c.RetryBackoff
}

func (c Client) maxArtifactBytes() int64 {
	if c.MaxArtifactBytes <= 0 {
		return defaultMaxArtifactBytes
	}
	return c.MaxArtifactBytes
}
