package circleci

import (
	"errors"
	"reflect"
	"testing"
)

func TestArtifactIndexResolve(t *testing.T) {
	index := NewArtifactIndex([]Artifact{
		{Path: "git/repo.txt", URL: "u1"},
		{Path: "git/remote.txt", URL: "u2"},
		{Path: "git/commit.txt", URL: "u4"},
	})

	urls, err := index.Resolve(5, "git/commit.txt", "git/repo.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(urls, []string{"u4", "u1"}) {
		t.Fatalf("unexpected urls: %v", urls)
	}

	_, err = index.Resolve(5, "git/repo.txt", "git/branch.txt", "out/out.wasm")
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if FailedPath(err) != "git/branch.txt" {
		t.Fatalf("expected first missing path, got %q", FailedPath(err))
	}
	if err.Error() != "artifact not found: job 5: git/branch.txt" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestArtifactIndexPathsSorted(t *testing.T) {
	index := ArtifactIndex{"b": "2", "a": "1", "c": "3"}
	if got := index.Paths(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected paths: %v", got)
	}
}
