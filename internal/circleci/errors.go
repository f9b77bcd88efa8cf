package circleci

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactList indicates the artifact listing could not be retrieved.
	ErrArtifactList = errors.New("artifact list failed")
	// ErrArtifactNotFound indicates a required path is absent from the listing.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrArtifactFetch indicates an artifact body could not be retrieved.
	ErrArtifactFetch = errors.New("artifact fetch failed")
)

// ArtifactError describes a failed artifact operation for one job.
type ArtifactError struct {
	Kind error
	Job  int
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	msg := e.Kind.Error()
	if e.Job > 0 {
		msg = fmt.Sprintf("%s: job %d", msg, e.Job)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ArtifactError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FailedPath returns the artifact path carried by err, if any.
func FailedPath(err error) string {
	var artifactErr *ArtifactError
	if errors.As(err, &artifactErr) {
		return artifactErr.Path
	}
	return ""
}

type statusError struct {
	StatusCode int
	Status     string
}

func (e *statusError) Error() string {
	return "unexpected status " + e.Status
}
