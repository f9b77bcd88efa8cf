// Package attest turns a verified CircleCI job completion into an attestation:
// the provenance of the build plus a content identifier for its binary.
package attest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fr0stylo/ciattest/internal/circleci"
	"github.com/fr0stylo/ciattest/internal/contentid"
	"github.com/fr0stylo/ciattest/internal/observability"
	"github.com/fr0stylo/ciattest/internal/provenance"
)

const (
	// DefaultBinaryPath is the compiled artifact the build job publishes.
	DefaultBinaryPath     = "out/out.wasm"
	defaultRequestTimeout = 30 * time.Second
)

// Stage names a step of webhook processing.
type Stage string

const (
	StageReceived  Stage = "received"
	StageVerifying Stage = "verifying"
	StageParsing   Stage = "parsing"
	StageFiltering Stage = "filtering"
	StageResolving Stage = "resolving"
	StageFetching  Stage = "fetching"
	StageEmitting  Stage = "emitting"
	StageCompleted Stage = "completed"
)

// StageError records the stage at which a delivery was rejected.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RejectedAt returns the stage carried by err, if any.
func RejectedAt(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

// ArtifactSource lists and downloads job artifacts.
type ArtifactSource interface {
	ListArtifacts(ctx context.Context, jobNumber int) (circleci.ArtifactIndex, error)
	Download(ctx context.Context, path, url string) ([]byte, error)
}

// Emitter hands a completed attestation to the registry.
type Emitter interface {
	Emit(ctx context.Context, attestation Attestation) error
}

// Attestation is the result of one successful pipeline run.
type Attestation struct {
	Provenance   provenance.Record   `json:"provenance"`
	ContentID    contentid.ID        `json:"content_id"`
	Digests      contentid.DigestSet `json:"digests"`
	ProjectSlug  string              `json:"project_slug"`
	JobNumber    int                 `json:"job_number"`
	ArtifactPath string              `json:"artifact_path"`
	ArtifactURL  string              `json:"artifact_url"`
	ArtifactSize int                 `json:"artifact_size"`
	DeliveryID   string              `json:"delivery_id,omitempty"`
	WorkflowURL  string              `json:"workflow_url,omitempty"`
	CompletedAt  time.Time           `json:"completed_at"`
}

// Config is the immutable pipeline configuration.
type Config struct {
	WebhookSecret  string
	JobName        string
	ProjectSlug    string
	BinaryPath     string
	RequestTimeout time.Duration
}

// Pipeline processes webhook deliveries.
type Pipeline struct {
	cfg       Config
	source    ArtifactSource
	assembler *provenance.Assembler
	emitter   Emitter
	log       *slog.Logger
	now       func() time.Time
}

// NewPipeline constructs a pipeline. emitter may be nil.
func NewPipeline(cfg Config, source ArtifactSource, emitter Emitter, log *slog.Logger) *Pipeline {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		cfg.BinaryPath = DefaultBinaryPath
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		source:    source,
		assembler: provenance.NewAssembler(source),
		emitter:   emitter,
		log:       log,
		now:       time.Now,
	}
}

// Handle verifies, filters and attests one webhook delivery.
func (p *Pipeline) Handle(ctx context.Context, headers http.Header, body []byte) (Attestation, error) {
	p.log.DebugContext(ctx, "Webhook received", "stage", StageReceived, "bytes", len(body))

	if !circleci.VerifySignature(p.cfg.WebhookSecret, headers, body) {
		return p.reject(ctx, StageVerifying, ErrUnauthorized)
	}

	event, err := circleci.ParseWebhookEvent(body)
	if err != nil {
		return p.reject(ctx, StageParsing, fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	ctx = observability.WithDelivery(ctx, event.ID, event.JobNumber())

	if !event.IsSuccessfulJob(p.cfg.JobName) {
		return p.reject(ctx, StageFiltering, fmt.Errorf("%w: %s", ErrIgnored, describe(event)))
	}

	attestation, err := p.run(ctx, event.JobNumber(), true)
	if err != nil {
		return Attestation{}, err
	}
	attestation.DeliveryID = event.ID
	if event.Workflow != nil {
		attestation.WorkflowURL = event.Workflow.URL
	}
	return attestation, nil
}

// Inspect runs artifact resolution and addressing for jobNumber without
// emitting to the registry.
func (p *Pipeline) Inspect(ctx context.Context, jobNumber int) (Attestation, error) {
	if jobNumber <= 0 {
		return p.reject(ctx, StageParsing, fmt.Errorf("%w: invalid job number %d", ErrBadRequest, jobNumber))
	}
	ctx = observability.WithDelivery(ctx, "", jobNumber)
	return p.run(ctx, jobNumber, false)
}

func (p *Pipeline) run(ctx context.Context, jobNumber int, emit bool) (Attestation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	index, err := p.source.ListArtifacts(ctx, jobNumber)
	if err != nil {
		return p.reject(ctx, StageResolving, err)
	}
	required := append(append([]string(nil), provenance.Paths...), p.cfg.BinaryPath)
	urls, err := index.Resolve(jobNumber, required...)
	if err != nil {
		return p.reject(ctx, StageResolving, err)
	}
	binaryURL := urls[len(urls)-1]

	var (
		record provenance.Record
		binary []byte
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		record, err = p.assembler.Assemble(groupCtx, jobNumber, index)
		return err
	})
	group.Go(func() error {
		var err error
		binary, err = p.source.Download(groupCtx, p.cfg.BinaryPath, binaryURL)
		return err
	})
	if err := group.Wait(); err != nil {
		return p.reject(ctx, StageFetching, err)
	}

	attestation := Attestation{
		Provenance:   record,
		ContentID:    contentid.AddressOf(binary),
		Digests:      contentid.Digests(binary),
		ProjectSlug:  p.cfg.ProjectSlug,
		JobNumber:    jobNumber,
		ArtifactPath: p.cfg.BinaryPath,
		ArtifactURL:  binaryURL,
		ArtifactSize: len(binary),
		CompletedAt:  p.now().UTC(),
	}

	if emit && p.emitter != nil {
		if err := p.emitter.Emit(ctx, attestation); err != nil {
			return p.reject(ctx, StageEmitting, fmt.Errorf("%w: %w", ErrEmit, err))
		}
	}

	p.log.InfoContext(ctx, "Attestation completed",
		"stage", StageCompleted,
		"content_id", attestation.ContentID,
		"commit", record.CommitHash,
		"artifact_size", attestation.ArtifactSize,
		"emitted", emit && p.emitter != nil,
	)
	return attestation, nil
}

func (p *Pipeline) reject(ctx context.Context, stage Stage, err error) (Attestation, error) {
	err = &StageError{Stage: stage, Err: err}
	kind := ClassifyError(err)
	attrs := []any{"stage", stage, "kind", kind, "error", err}
	if path := circleci.FailedPath(err); path != "" {
		attrs = append(attrs, "artifact_path", path)
	}

	switch {
	case kind == ErrorIgnored:
		p.log.InfoContext(ctx, "Webhook ignored", attrs...)
	case kind.Operational():
		p.log.ErrorContext(ctx, "Attestation failed", attrs...)
	default:
		p.log.WarnContext(ctx, "Webhook rejected", attrs...)
	}
	return Attestation{}, err
}

func describe(event circleci.WebhookEvent) string {
	parts := []string{"type=" + event.Type}
	if event.Job != nil {
		parts = append(parts, "job="+event.Job.Name)
	}
	if event.Workflow != nil {
		parts = append(parts, "status="+event.Workflow.Status)
	}
	return strings.Join(parts, " ")
}
