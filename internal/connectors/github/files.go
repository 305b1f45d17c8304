package github

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// snapshot opens the default branch of a repository.
func snapshot(
	ctx context.Context, client *Client, trees TreeSource, repo domain.RepositoryID,
) (Tree, string, error) {
	branch, err := client.DefaultBranch(ctx, repo)
	if err != nil {
		return nil, "", fmt.Errorf("resolve default branch: %w", err)
	}
	tree, err := trees.Open(ctx, repo, branch)
	if err != nil {
		return nil, "", fmt.Errorf("open %s@%s: %w", repo, branch, err)
	}
	return tree, branch, nil
}

// selectFiles keeps the files accepted by keep, ordered by sortFn and
// capped at limit. It returns the number of files dropped by the cap.
func selectFiles(files []TreeFile, keep func(string) bool, sortFn func([]TreeFile), limit int) ([]TreeFile, int) {
	selected := make([]TreeFile, 0, len(files))
	for _, f := range files {
		if keep(f.Path) {
			selected = append(selected, f)
		}
	}
	sortFn(selected)

	if limit > 0 && len(selected) > limit {
		return selected[:limit], len(selected) - limit
	}
	return selected, 0
}

// readText reads a file as text. It returns a non-empty skip reason for
// oversized, binary and unreadable files.
func readText(ctx context.Context, tree Tree, f TreeFile, maxBytes int) (string, string) {
	if maxBytes > 0 && f.Size > int64(maxBytes) {
		return "", fmt.Sprintf("skipped %s: %d bytes exceeds %d", f.Path, f.Size, maxBytes)
	}
	content, err := tree.Read(ctx, f)
	if err != nil {
		return "", fmt.Sprintf("skipped %s: %v", f.Path, err)
	}
	if bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return "", fmt.Sprintf("skipped %s: binary content", f.Path)
	}
	return string(content), ""
}

func blobURL(repo domain.RepositoryID, branch, path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", repo.Owner, repo.Name, branch, path)
}
