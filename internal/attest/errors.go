package attest

import (
	"context"
	"errors"
	"net/http"

	"github.com/fr0stylo/ciattest/internal/circleci"
)

var (
	// ErrUnauthorized indicates a missing or invalid webhook signature.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBadRequest indicates a webhook body that could not be interpreted.
	ErrBadRequest = errors.New("bad request")
	// ErrIgnored indicates a valid event the service does not act on.
	ErrIgnored = errors.New("event ignored")
	// ErrEmit indicates the attestation could not be handed to the registry.
	ErrEmit = errors.New("attestation emit failed")
)

// ErrorKind classifies pipeline failures for transport-specific mapping.
type ErrorKind string

const (
	// ErrorUnknown is used when error is nil or not classified.
	ErrorUnknown ErrorKind = "unknown"
	// ErrorUnauthorized indicates signature verification failure.
	ErrorUnauthorized ErrorKind = "unauthorized"
	// ErrorBadRequest indicates malformed webhook payload.
	ErrorBadRequest ErrorKind = "bad_request"
	// ErrorIgnored indicates an event outside the accepted filter.
	ErrorIgnored ErrorKind = "ignored"
	// ErrorArtifactList indicates the artifact listing failed.
	ErrorArtifactList ErrorKind = "artifact_list"
	// ErrorArtifactNotFound indicates a required artifact is missing.
	ErrorArtifactNotFound ErrorKind = "artifact_not_found"
	// ErrorArtifactFetch indicates an artifact download failed.
	ErrorArtifactFetch ErrorKind = "artifact_fetch"
	// ErrorEmit indicates the registry hand-off failed.
	ErrorEmit ErrorKind = "emit"
	// ErrorTimeout indicates the request deadline expired.
	ErrorTimeout ErrorKind = "timeout"
)

// ClassifyError classifies a returned pipeline error.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, ErrUnauthorized):
		return ErrorUnauthorized
	case errors.Is(err, ErrBadRequest):
		return ErrorBadRequest
	case errors.Is(err, ErrIgnored):
		return ErrorIgnored
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, circleci.ErrArtifactList):
		return ErrorArtifactList
	case errors.Is(err, circleci.ErrArtifactNotFound):
		return ErrorArtifactNotFound
	case errors.Is(err, circleci.ErrArtifactFetch):
		return ErrorArtifactFetch
	case errors.Is(err, ErrEmit):
		return ErrorEmit
	default:
		return ErrorUnknown
	}
}

// StatusCode maps the kind to an HTTP status.
func (k ErrorKind) StatusCode() int {
	switch k {
	case ErrorUnauthorized:
		return http.StatusUnauthorized
	case ErrorBadRequest, ErrorIgnored:
		return http.StatusBadRequest
	case ErrorArtifactList, ErrorArtifactNotFound, ErrorArtifactFetch, ErrorEmit:
		return http.StatusBadGateway
	case ErrorTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text safe to return to callers.
func (k ErrorKind) PublicMessage() string {
	switch k {
	case ErrorUnauthorized:
		return "Unauthorized"
	case ErrorBadRequest, ErrorIgnored:
		return "Malformed request"
	case ErrorArtifactList, ErrorArtifactNotFound, ErrorArtifactFetch, ErrorEmit:
		return "Upstream unavailable"
	case ErrorTimeout:
		return "Upstream timeout"
	default:
		return "Internal error"
	}
}

// Operational reports whether the kind is an upstream or infrastructure failure.
func (k ErrorKind) Operational() bool {
	return k.StatusCode() >= http.StatusInternalServerError
}
