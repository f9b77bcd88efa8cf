package circleci

import (
	"sort"

	"github.com/samber/lo"
)

// Artifact is one entry of the job artifact listing.
type Artifact struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	NodeIndex int    `json:"node_index"`
}

type artifactListResponse struct {
	Items         *[]Artifact `json:"items"`
	NextPageToken *string     `json:"next_page_token"`
}

// ArtifactIndex maps artifact paths to download URLs for one job.
type ArtifactIndex map[string]string

// NewArtifactIndex builds an index; for duplicate paths the last entry wins.
func NewArtifactIndex(items []Artifact) ArtifactIndex {
	index := make(ArtifactIndex, len(items))
	for _, item := range items {
		index[item.Path] = item.URL
	}
	return index
}

// Lookup returns the URL for path.
func (idx ArtifactIndex) Lookup(path string) (string, bool) {
	url, ok := idx[path]
	return url, ok
}

// Resolve returns URLs for paths in order, or ErrArtifactNotFound naming the
// first path that is absent.
func (idx ArtifactIndex) Resolve(job int, paths ...string) ([]string, error) {
	missing := lo.Filter(paths, func(path string, _ int) bool {
		_, ok := idx[path]
		return !ok
	})
	if len(missing) > 0 {
		return nil, &ArtifactError{Kind: ErrArtifactNotFound, Job: job, Path: missing[0]}
	}
	return lo.Map(paths, func(path string, _ int) string {
		return idx[path]
	}), nil
}

// Paths returns the indexed paths in sorted order.
func (idx ArtifactIndex) Paths() []string {
	paths := lo.Keys(map[string]string(idx))
	sort.Strings(paths)
	return paths
}
