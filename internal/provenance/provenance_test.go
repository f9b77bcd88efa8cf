package provenance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fr0stylo/ciattest/internal/circleci"
)

type fakeFetcher struct {
	bodies map[string]string
	delays map[string]time.Duration
	fail   map[string]error
	calls  atomic.Int32

	mu    sync.Mutex
	order []string
}

func (f *fakeFetcher) Download(ctx context.Context, path, url string) ([]byte, error) {
	f.calls.Add(1)
	if delay := f.delays[path]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.order = append(f.order, path)
	f.mu.Unlock()
	return []byte(f.bodies[url]), nil
}

func fullIndex() circleci.ArtifactIndex {
	return circleci.ArtifactIndex{
		RepositoryPath: "u-repo",
		RemotePath:     "u-remote",
		BranchPath:     "u-branch",
		CommitPath:     "u-commit",
		"out/out.wasm": "u-wasm",
	}
}

func TestAssembleMapsFieldsRegardlessOfCompletionOrder(t *testing.T) {
	fetcher := &fakeFetcher{
		bodies: map[string]string{
			"u-repo":   "acme/widget\n",
			"u-remote": " git@github.com:acme/widget.git ",
			"u-branch": "main\n",
			"u-commit": "abc123\n",
		},
		delays: map[string]time.Duration{
			RepositoryPath: 40 * time.Millisecond,
			RemotePath:     30 * time.Millisecond,
			BranchPath:     20 * time.Millisecond,
			CommitPath:     0,
		},
	}

	record, err := NewAssembler(fetcher).Assemble(context.Background(), 42, fullIndex())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := Record{
		Repository: "acme/widget",
		Remote:     "git@github.com:acme/widget.git",
		Branch:     "main",
		CommitHash: "abc123",
	}
	if record != want {
		t.Fatalf("unexpected record: got=%+v want=%+v", record, want)
	}
	if fetcher.order[0] != CommitPath {
		t.Fatalf("expected commit to finish first, order=%v", fetcher.order)
	}
}

func TestAssembleFailsFastOnMissingPath(t *testing.T) {
	index := fullIndex()
	delete(index, BranchPath)

	fetcher := &fakeFetcher{}
	_, err := NewAssembler(fetcher).Assemble(context.Background(), 42, index)
	if !errors.Is(err, circleci.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if circleci.FailedPath(err) != BranchPath {
		t.Fatalf("unexpected path: %q", circleci.FailedPath(err))
	}
	if got := fetcher.calls.Load(); got != 0 {
		t.Fatalf("expected no fetches, got %d", got)
	}
}

func TestAssembleReportsFailedPath(t *testing.T) {
	fetcher := &fakeFetcher{
		bodies: map[string]string{"u-repo": "r", "u-remote": "m", "u-branch": "b"},
		delays: map[string]time.Duration{RepositoryPath: time.Second},
		fail:   map[string]error{CommitPath: errors.New("connection reset")},
	}

	start := time.Now()
	record, err := NewAssembler(fetcher).Assemble(context.Background(), 9, fullIndex())
	if !errors.Is(err, circleci.ErrArtifactFetch) {
		t.Fatalf("expected ErrArtifactFetch, got %v", err)
	}
	if circleci.FailedPath(err) != CommitPath {
		t.Fatalf("unexpected path: %q", circleci.FailedPath(err))
	}
	if record != (Record{}) {
		t.Fatalf("expected empty record, got %+v", record)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("slow sibling was not cancelled: %s", elapsed)
	}
}

func TestAssembleHonoursContextCancellation(t *testing.T) {
	fetcher := &fakeFetcher{
		delays: map[string]time.Duration{
			RepositoryPath: time.Second,
			RemotePath:     time.Second,
			BranchPath:     time.Second,
			CommitPath:     time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewAssembler(fetcher).Assemble(ctx, 1, fullIndex())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
