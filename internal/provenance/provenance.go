// Package provenance rebuilds source metadata for a CI job from the text
// artifacts the job publishes under git/.
package provenance

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fr0stylo/ciattest/internal/circleci"
)

// Artifact paths the build job publishes.
const (
	RepositoryPath = "git/repo.txt"
	RemotePath     = "git/remote.txt"
	BranchPath     = "git/branch.txt"
	CommitPath     = "git/commit.txt"
)

// Paths lists the provenance artifacts in record field order.
var Paths = []string{RepositoryPath, RemotePath, BranchPath, CommitPath}

// Record describes the source a binary was built from.
type Record struct {
	Repository string `json:"repository"`
	Remote     string `json:"remote"`
	Branch     string `json:"branch"`
	CommitHash string `json:"commit_hash"`
}

// Fetcher downloads one artifact body.
type Fetcher interface {
	Download(ctx context.Context, path, url string) ([]byte, error)
}

// Assembler builds provenance records from an artifact index.
type Assembler struct {
	fetcher Fetcher
}

// NewAssembler constructs an assembler backed by fetcher.
func NewAssembler(fetcher Fetcher) *Assembler {
	return &Assembler{fetcher: fetcher}
}

// Assemble fetches the four provenance artifacts concurrently.
//
// Every path is resolved before any request is made. The first failed fetch
// cancels the others and no partial record is returned.
func (a *Assembler) Assemble(ctx context.Context, jobNumber int, index circleci.ArtifactIndex) (Record, error) {
	urls, err := index.Resolve(jobNumber, Paths...)
	if err != nil {
		return Record{}, err
	}

	values := make([]string, len(Paths))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, path := range Paths {
		group.Go(func() error {
			body, err := a.fetcher.Download(groupCtx, path, urls[i])
			if err != nil {
				return asFetchError(jobNumber, path, err)
			}
			values[i] = strings.TrimSpace(string(body))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Record{}, err
	}

	return Record{
		Repository: values[0],
		Remote:     values[1],
		Branch:     values[2],
		CommitHash: values[3],
	}, nil
}

func asFetchError(jobNumber int, path string, err error) error {
	var artifactErr *circleci.ArtifactError
	if errors.As(err, &artifactErr) {
		return err
	}
	return &circleci.ArtifactError{Kind: circleci.ErrArtifactFetch, Job: jobNumber, Path: path, Err: err}
}
