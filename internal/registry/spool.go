// Package registry hands completed attestations to the downstream registry:
// a document per binary in the cache directory, and optionally a CDEvent.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fr0stylo/ciattest/internal/attest"
	"github.com/fr0stylo/ciattest/internal/contentid"
)

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Spool writes one JSON record per content id under a directory. Files are
// replaced atomically and never read back by the service.
type Spool struct {
	dir string
}

// NewSpool creates dir if needed.
func NewSpool(dir string) (*Spool, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("registry cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry cache dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the spool root.
func (s *Spool) Dir() string {
	return s.dir
}

// PathFor returns where the record for a is written.
func (s *Spool) PathFor(a attest.Attestation) string {
	return filepath.Join(s.dir, projectDir(a.ProjectSlug), string(a.ContentID)+".json")
}

// Emit writes the registry record for a.
func (s *Spool) Emit(ctx context.Context, a attest.Attestation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := contentid.Parse(string(a.ContentID)); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(NewRecord(a), "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	target := s.PathFor(a)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	return writeFileAtomic(target, append(payload, '\n'))
}

func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

func projectDir(slug string) string {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" {
		return "_unknown"
	}
	parts := strings.Split(slug, "/")
	for i, part := range parts {
		part = unsafeSegment.ReplaceAllString(part, "_")
		if part == "" || part == "." || part == ".." {
			part = "_"
		}
		parts[i] = part
	}
	return strings.Join(parts, "_")
}
