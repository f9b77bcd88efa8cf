package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fr0stylo/ciattest/internal/attest"
	"github.com/fr0stylo/ciattest/internal/contentid"
)

const (
	statementType = "https://in-toto.io/Statement/v1"
	predicateType = "https://slsa.dev/provenance/v1"
	buildType     = "https://github.com/fr0stylo/ciattest/circleci-job/v1"
)

// Subject names an attested binary and its digests.
type Subject struct {
	Name    string              `json:"name"`
	Digests contentid.DigestSet `json:"digest"`
}

// Dependency is a resolved build input such as the source commit.
type Dependency struct {
	URI       string              `json:"uri"`
	DigestSet contentid.DigestSet `json:"digest,omitempty"`
}

// BuildDefinition describes how the binary was built.
type BuildDefinition struct {
	BuildType            string         `json:"buildType"`
	ExternalParameters   map[string]any `json:"externalParameters"`
	ResolvedDependencies []Dependency   `json:"resolvedDependencies,omitempty"`
}

// Builder identifies the CI project that ran the build.
type Builder struct {
	ID string `json:"id"`
}

// BuildMetadata ties the build to its webhook delivery.
type BuildMetadata struct {
	InvocationID string `json:"invocationID,omitempty"`
	FinishedOn   string `json:"finishedOn,omitempty"`
}

// RunDetails records who ran the build and when.
type RunDetails struct {
	Builder  Builder       `json:"builder"`
	Metadata BuildMetadata `json:"metadata"`
}

// Predicate is the SLSA provenance body of a Statement.
type Predicate struct {
	BuildDefinition BuildDefinition `json:"buildDefinition"`
	RunDetails      RunDetails      `json:"runDetails"`
}

// Statement is an in-toto statement carrying SLSA provenance for one binary.
type Statement struct {
	Type          string    `json:"_type"`
	Subjects      []Subject `json:"subject"`
	PredicateType string    `json:"predicateType"`
	Predicate     Predicate `json:"predicate"`
}

// Record is the document written for each attested binary.
type Record struct {
	ContentID   contentid.ID       `json:"content_id"`
	Attestation attest.Attestation `json:"attestation"`
	Statement   Statement          `json:"statement"`
}

// NewRecord builds the registry record for an attestation.
func NewRecord(a attest.Attestation) Record {
	return Record{
		ContentID:   a.ContentID,
		Attestation: a,
		Statement:   NewStatement(a),
	}
}

// NewStatement describes a as an in-toto statement.
func NewStatement(a attest.Attestation) Statement {
	var deps []Dependency
	if a.Provenance.CommitHash != "" {
		deps = append(deps, Dependency{
			URI:       sourceURI(a.Provenance.Remote, a.Provenance.Branch),
			DigestSet: contentid.DigestSet{"gitCommit": a.Provenance.CommitHash},
		})
	}

	invocation := a.DeliveryID
	if invocation == "" {
		invocation = fmt.Sprintf("%s/%d", a.ProjectSlug, a.JobNumber)
	}
	finished := ""
	if !a.CompletedAt.IsZero() {
		finished = a.CompletedAt.UTC().Format(time.RFC3339)
	}

	return Statement{
		Type:          statementType,
		Subjects:      []Subject{{Name: a.ArtifactPath, Digests: a.Digests}},
		PredicateType: predicateType,
		Predicate: Predicate{
			BuildDefinition: BuildDefinition{
				BuildType: buildType,
				ExternalParameters: map[string]any{
					"project":    a.ProjectSlug,
					"job":        a.JobNumber,
					"repository": a.Provenance.Repository,
					"branch":     a.Provenance.Branch,
				},
				ResolvedDependencies: deps,
			},
			RunDetails: RunDetails{
				Builder:  Builder{ID: "https://circleci.com/" + strings.Trim(a.ProjectSlug, "/")},
				Metadata: BuildMetadata{InvocationID: invocation, FinishedOn: finished},
			},
		},
	}
}

func sourceURI(remote, branch string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return ""
	}
	uri := "git+" + remote
	if branch = strings.TrimSpace(branch); branch != "" {
		uri += "@refs/heads/" + branch
	}
	return uri
}
