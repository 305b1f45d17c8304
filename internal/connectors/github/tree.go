package github

import (
	"context"
	"fmt"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/logger"
)

// TreeFile is a regular file in a repository snapshot.
type TreeFile struct {
	// Path is slash-separated and relative to the repository root.
	Path string
	Size int64

	sha   string
	local string
}

// Tree is a readable snapshot of a repository's files at one ref.
type Tree interface {
	// Files lists regular files, excluded paths already removed.
	Files() []TreeFile

	// Read returns a file's content.
	Read(ctx context.Context, f TreeFile) ([]byte, error)

	// Close releases the snapshot.
	Close() error
}

// TreeSource opens repository snapshots.
type TreeSource interface {
	Open(ctx context.Context, repo domain.RepositoryID, ref string) (Tree, error)
}

// NewTreeSource returns the snapshot source for the docs and code stages.
// With useClone a shallow clone is tried first and the tree API is the
// fallback.
func NewTreeSource(client *Client, useClone bool) TreeSource {
	api := &APITreeSource{client: client}
	if !useClone {
		return api
	}
	return &fallbackTreeSource{
		primary:  NewCloneTreeSource(client.Token()),
		fallback: api,
	}
}

// APITreeSource reads snapshots through the git trees and blobs API.
type APITreeSource struct {
	client *Client
}

// NewAPITreeSource creates an API-backed tree source.
func NewAPITreeSource(client *Client) *APITreeSource {
	return &APITreeSource{client: client}
}

// Open fetches the recursive tree for ref.
func (s *APITreeSource) Open(ctx context.Context, repo domain.RepositoryID, ref string) (Tree, error) {
	tree, err := s.client.GetTree(ctx, repo, ref)
	if err != nil {
		return nil, fmt.Errorf("get tree %s@%s: %w", repo, ref, err)
	}
	if tree.GetTruncated() {
		logger.Warn("tree for %s@%s is truncated; some files are missing", repo, ref)
	}

	files := make([]TreeFile, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" || IsExcluded(entry.GetPath()) {
			continue
		}
		files = append(files, TreeFile{
			Path: entry.GetPath(),
			Size: int64(entry.GetSize()),
			sha:  entry.GetSHA(),
		})
	}
	return &apiTree{client: s.client, repo: repo, files: files}, nil
}

type apiTree struct {
	client *Client
	repo   domain.RepositoryID
	files  []TreeFile
}

func (t *apiTree) Files() []TreeFile {
	return t.files
}

func (t *apiTree) Read(ctx context.Context, f TreeFile) ([]byte, error) {
	return t.client.GetBlob(ctx, t.repo, f.sha)
}

func (t *apiTree) Close() error {
	return nil
}

// fallbackTreeSource tries primary and falls back on any error.
type fallbackTreeSource struct {
	primary  TreeSource
	fallback TreeSource
}

func (s *fallbackTreeSource) Open(ctx context.Context, repo domain.RepositoryID, ref string) (Tree, error) {
	tree, err := s.primary.Open(ctx, repo, ref)
	if err == nil {
		return tree, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Warn("clone of %s failed, using tree API: %v", repo, err)
	return s.fallback.Open(ctx, repo, ref)
}
