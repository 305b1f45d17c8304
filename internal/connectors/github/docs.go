package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/logger"
	"github.com/custodia-labs/repolens/internal/metrics"
)

// Ensure DocsFetcher implements the interface.
var _ driven.Fetcher = (*DocsFetcher)(nil)

// DocsFetcher produces one document per documentation file.
type DocsFetcher struct {
	client *Client
	trees  TreeSource
	cfg    Config
}

// NewDocsFetcher creates a documentation fetcher.
func NewDocsFetcher(client *Client, trees TreeSource, cfg Config) *DocsFetcher {
	return &DocsFetcher{client: client, trees: trees, cfg: cfg}
}

// SourceType returns the documentation source type.
func (f *DocsFetcher) SourceType() domain.SourceType {
	return domain.SourceDocumentation
}

// Fetch reads READMEs first, then guides, then other documentation.
func (f *DocsFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	tree, branch, err := snapshot(ctx, f.client, f.trees, req.Repository)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	files, dropped := selectFiles(tree.Files(), IsDocFile, SortDocFiles, f.cfg.MaxDocFiles)
	result := &domain.FetchResult{Termination: domain.TerminationSourceExhausted}
	if dropped > 0 {
		result.Termination = domain.TerminationCollectedEnough
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("documentation capped at %d files; %d skipped", f.cfg.MaxDocFiles, dropped))
	}

	progress := startProgress(f.cfg.YieldInterval, "reading documentation", req.OnProgress)
	defer progress.Stop()

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Examined++
		progress.examined.Add(1)

		text, skip := readText(ctx, tree, file, f.cfg.MaxFileBytes)
		if skip != "" {
			result.Warnings = append(result.Warnings, skip)
			metrics.FetchWarning(string(domain.SourceDocumentation))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		result.Documents = append(result.Documents, domain.Document{
			SourceType: domain.SourceDocumentation,
			Identifier: file.Path,
			Text:       text,
			Metadata: map[string]any{
				"file_path": file.Path,
				"file_name": path.Base(file.Path),
				"file_type": strings.TrimPrefix(path.Ext(file.Path), "."),
				"size":      len(text),
				"branch":    branch,
				"html_url":  blobURL(req.Repository, branch, file.Path),
			},
		})
		result.Collected++
		progress.collected.Add(1)
	}

	logger.Debug("docs %s: %d documents from %d files", req.Repository, result.Collected, result.Examined)
	return result, nil
}
