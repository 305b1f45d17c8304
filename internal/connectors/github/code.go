package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/logger"
	"github.com/custodia-labs/repolens/internal/metrics"
)

// Ensure CodeFetcher implements the interface.
var _ driven.Fetcher = (*CodeFetcher)(nil)

// CodeFetcher produces one document per top-level declaration in
// supported languages and one per file otherwise.
type CodeFetcher struct {
	client    *Client
	trees     TreeSource
	segmenter driven.CodeSegmenter
	cfg       Config
}

// NewCodeFetcher creates a code fetcher. segmenter may be nil, in which
// case every file is ingested whole.
func NewCodeFetcher(client *Client, trees TreeSource, segmenter driven.CodeSegmenter, cfg Config) *CodeFetcher {
	return &CodeFetcher{client: client, trees: trees, segmenter: segmenter, cfg: cfg}
}

// SourceType returns the code source type.
func (f *CodeFetcher) SourceType() domain.SourceType {
	return domain.SourceCode
}

// Fetch reads priority files first, then popular languages.
func (f *CodeFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	tree, branch, err := snapshot(ctx, f.client, f.trees, req.Repository)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	files, dropped := selectFiles(tree.Files(), IsCodeFile, SortCodeFiles, f.cfg.MaxCodeFiles)
	result := &domain.FetchResult{Termination: domain.TerminationSourceExhausted}
	if dropped > 0 {
		result.Termination = domain.TerminationCollectedEnough
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("code capped at %d files; %d skipped", f.cfg.MaxCodeFiles, dropped))
	}

	progress := startProgress(f.cfg.YieldInterval, "reading code", req.OnProgress)
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
			metrics.FetchWarning(string(domain.SourceCode))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		docs, warning := f.documents(ctx, req.Repository, branch, file.Path, text)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
		result.Documents = append(result.Documents, docs...)
		result.Collected += len(docs)
		progress.collected.Add(int64(len(docs)))
	}

	logger.Debug("code %s: %d documents from %d files", req.Repository, result.Collected, result.Examined)
	return result, nil
}

// documents splits one file into declaration documents.
func (f *CodeFetcher) documents(
	ctx context.Context, repo domain.RepositoryID, branch, path, text string,
) ([]domain.Document, string) {
	language := LanguageFor(path)
	url := blobURL(repo, branch, path)

	var warning string
	if f.segmenter != nil && f.segmenter.Supports(language) {
		segments, err := f.segmenter.Segment(ctx, language, []byte(text))
		if err != nil {
			warning = fmt.Sprintf("segmenting %s failed, ingested whole: %v", path, err)
		} else if len(segments) > 0 {
			docs := make([]domain.Document, 0, len(segments))
			seen := make(map[string]int, len(segments))
			for _, seg := range segments {
				docs = append(docs, domain.Document{
					SourceType: domain.SourceCode,
					Identifier: segmentID(path, seg.Name, seen),
					Text:       fmt.Sprintf("// %s:%d-%d\n%s", path, seg.StartLine, seg.EndLine, seg.Text),
					Metadata: map[string]any{
						"file_path":     path,
						"function_name": seg.Name,
						"function_type": seg.Kind,
						"start_line":    seg.StartLine,
						"end_line":      seg.EndLine,
						"language":      language,
						"html_url":      fmt.Sprintf("%s#L%d-L%d", url, seg.StartLine, seg.EndLine),
					},
				})
			}
			return docs, ""
		}
	}

	lines := strings.Count(text, "\n") + 1
	return []domain.Document{{
		SourceType: domain.SourceCode,
		Identifier: path,
		Text:       fmt.Sprintf("// %s\n%s", path, text),
		Metadata: map[string]any{
			"file_path":     path,
			"function_type": "file",
			"start_line":    1,
			"end_line":      lines,
			"language":      language,
			"html_url":      url,
		},
	}}, warning
}

// segmentID identifies a declaration by file and name so that edits
// elsewhere in the file keep it stable. The second and later declarations
// sharing a name in one file get an ordinal suffix.
func segmentID(path, name string, seen map[string]int) string {
	if name == "" {
		name = "_"
	}
	seen[name]++
	if n := seen[name]; n > 1 {
		return fmt.Sprintf("%s#%s~%d", path, name, n)
	}
	return path + "#" + name
}
