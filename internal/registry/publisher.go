package registry

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cdeventsapi "github.com/cdevents/sdk-go/pkg/api"
	cdeventsv05 "github.com/cdevents/sdk-go/pkg/api/v05"
	cebinding "github.com/cloudevents/sdk-go/v2/binding"
	ceevent "github.com/cloudevents/sdk-go/v2/event"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/google/uuid"
	"github.com/package-url/packageurl-go"

	"github.com/fr0stylo/ciattest/internal/attest"
)

const (
	// SignatureHeader carries the HMAC of the published body.
	SignatureHeader = "X-Webhook-Signature"
	// DefaultSource is the CDEvents source used when none is configured.
	DefaultSource = "circleci/attest"
)

// Publisher announces attestations as CDEvents artifact.published events
// delivered in CloudEvents binary mode.
type Publisher struct {
	Endpoint   string
	Token      string
	Secret     string
	Source     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Emit publishes a.
func (p Publisher) Emit(ctx context.Context, a attest.Attestation) error {
	body, err := BuildEventBody(p.source(), a)
	if err != nil {
		return err
	}
	return p.publishBody(ctx, body)
}

// BuildEventBody renders the CDEvent for a.
func BuildEventBody(source string, a attest.Attestation) ([]byte, error) {
	subjectID, err := PackageURL(a)
	if err != nil {
		return nil, err
	}

	e, err := cdeventsv05.NewArtifactPublishedEvent()
	if err != nil {
		return nil, err
	}
	e.SetSource(source)
	e.SetTimestamp(a.CompletedAt)
	e.SetSubjectId(subjectID)
	e.SetSubjectSource(source)
	if err := e.SetCustomData("application/json", NewRecord(a)); err != nil {
		return nil, fmt.Errorf("attach record: %w", err)
	}
	if err := cdeventsapi.Validate(e); err != nil {
		return nil, fmt.Errorf("invalid cdevent: %w", err)
	}
	raw, err := cdeventsapi.AsJsonString(e)
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

// PackageURL returns the purl naming the attested binary.
func PackageURL(a attest.Attestation) (string, error) {
	sha := strings.TrimSpace(a.Digests["sha256"])
	if sha == "" {
		return "", fmt.Errorf("attestation has no sha256 digest")
	}

	namespace, name := splitRepository(a.Provenance.Repository)
	if name == "" {
		namespace, name = splitRepository(a.ProjectSlug)
	}
	if name == "" {
		return "", fmt.Errorf("attestation has no repository")
	}

	qualifiers := map[string]string{
		"checksum":   "sha256:" + sha,
		"content_id": a.ContentID.String(),
	}
	if remote := strings.TrimSpace(a.Provenance.Remote); remote != "" {
		qualifiers["vcs_url"] = remote
	}

	purl := packageurl.NewPackageURL(
		packageurl.TypeGeneric,
		namespace,
		name,
		a.Provenance.CommitHash,
		packageurl.QualifiersFromMap(qualifiers),
		a.ArtifactPath,
	)
	return purl.ToString(), nil
}

func (p Publisher) publishBody(ctx context.Context, body []byte) error {
	endpoint := strings.TrimSpace(p.Endpoint)
	token := strings.TrimSpace(p.Token)
	secret := strings.TrimSpace(p.Secret)
	if endpoint == "" || token == "" || secret == "" {
		return fmt.Errorf("endpoint/token/secret are required")
	}

	httpClient := p.HTTPClient
	if httpClient == nil {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	event := ceevent.New()
	event.SetID(uuid.NewString())
	event.SetSource(p.source())
	event.SetType(cdeventsv05.ArtifactPublishedEventType.String())
	event.SetTime(time.Now().UTC())
	if err := event.SetData(ceevent.ApplicationJSON, body); err != nil {
		return fmt.Errorf("build cloudevent: %w", err)
	}

	requestURL := strings.TrimRight(endpoint, "/") + "/webhooks/cdevents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if err := cehttp.WriteRequest(ctx, cebinding.ToMessage(&event), req); err != nil {
		return fmt.Errorf("encode cloudevent: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SignatureHeader, sign(body, secret))

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("registry rejected event: status=%s body=%s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}

func (p Publisher) source() string {
	if source := strings.TrimSpace(p.Source); source != "" {
		return source
	}
	return DefaultSource
}

func splitRepository(value string) (string, string) {
	value = strings.Trim(strings.TrimSpace(value), "/")
	value = strings.TrimSuffix(value, ".git")
	if value == "" {
		return "", ""
	}
	idx := strings.LastIndex(value, "/")
	if idx < 0 {
		return "", value
	}
	return value[:idx], value[idx+1:]
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
