package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/logger"
	"github.com/custodia-labs/repolens/internal/metrics"
)

// Ensure PullRequestFetcher implements the interface.
var _ driven.Fetcher = (*PullRequestFetcher)(nil)

// PullRequestFetcher produces one document per merged pull request with
// its file diffs.
type PullRequestFetcher struct {
	client *Client
	cfg    Config
}

// NewPullRequestFetcher creates a pull request fetcher.
func NewPullRequestFetcher(client *Client, cfg Config) *PullRequestFetcher {
	return &PullRequestFetcher{client: client, cfg: cfg}
}

// SourceType returns the pull request source type.
func (f *PullRequestFetcher) SourceType() domain.SourceType {
	return domain.SourcePullRequest
}

// Fetch scans closed pull requests newest first and keeps the merged
// ones. The scan is bounded by MaxPRs collected, MaxToExamine examined and
// the wall-clock budget; whichever comes first sets the termination
// reason. Running out of budget is not an error: whatever was collected is
// returned.
func (f *PullRequestFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	start := time.Now()
	s := newPRScan(req.Limits, f.cfg.ScanPolicy, start)

	scanCtx := ctx
	if !s.deadline.IsZero() {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithDeadline(ctx, s.deadline)
		defer cancel()
	}

	progress := startProgress(f.cfg.YieldInterval, "scanning pull requests", req.OnProgress)
	defer progress.Stop()

	result := &domain.FetchResult{}
	reason := domain.TerminationNone
	page := 1

scan:
	for {
		if reason = s.stopReason(scanCtx); reason != domain.TerminationNone {
			break
		}

		prs, next, err := f.client.ListClosedPullRequestsPage(scanCtx, req.Repository, page, s.pageSize())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if scanCtx.Err() != nil {
				reason = domain.TerminationWallClockLimit
				break
			}
			if s.collected == 0 {
				return nil, fmt.Errorf("list pull requests for %s: %w", req.Repository, err)
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("pull request listing stopped early: %v", err))
			reason = domain.TerminationSourceExhausted
			break
		}

		for _, pr := range prs {
			if reason = s.stopReason(scanCtx); reason != domain.TerminationNone {
				break scan
			}
			s.examined++
			progress.examined.Add(1)
			metrics.PRExamined()

			if pr.MergedAt == nil {
				continue
			}

			doc, warning, err := f.document(scanCtx, req.Repository, pr)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				reason = domain.TerminationWallClockLimit
				break scan
			}
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
				metrics.FetchWarning(string(domain.SourcePullRequest))
			}
			result.Documents = append(result.Documents, doc)
			s.collected++
			progress.collected.Add(1)
		}

		if reason = s.stopReason(scanCtx); reason != domain.TerminationNone {
			break
		}
		if next == 0 {
			reason = domain.TerminationSourceExhausted
			break
		}
		page = next
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Examined = s.examined
	result.Collected = s.collected
	result.Termination = reason

	logger.Debug("pull requests %s: examined %d, collected %d in %s (%s)",
		req.Repository, s.examined, s.collected, time.Since(start).Round(time.Millisecond), reason)
	return result, nil
}

// document renders a merged pull request. A failed file listing yields a
// warning and a document without diffs; an expired scan context yields an
// error so the PR is not counted.
func (f *PullRequestFetcher) document(
	ctx context.Context, repo domain.RepositoryID, pr *gh.PullRequest,
) (domain.Document, string, error) {
	var warning string
	files, more, err := f.client.ListPullRequestFiles(ctx, repo, pr.GetNumber(), f.cfg.MaxFilesPerPR)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Document{}, "", ctx.Err()
		}
		warning = fmt.Sprintf("files for PR #%d unavailable: %v", pr.GetNumber(), err)
	} else if more {
		warning = fmt.Sprintf("PR #%d: only the first %d changed files kept", pr.GetNumber(), f.cfg.MaxFilesPerPR)
	}

	labels := make([]string, len(pr.Labels))
	for i, l := range pr.Labels {
		labels[i] = l.GetName()
	}
	paths := make([]string, len(files))
	for i, file := range files {
		paths[i] = file.GetFilename()
	}

	return domain.Document{
		SourceType: domain.SourcePullRequest,
		Identifier: fmt.Sprintf("PR #%d", pr.GetNumber()),
		Text:       renderPullRequest(pr, files, f.cfg.MaxDiffBytes),
		Metadata: map[string]any{
			"pr_number":     pr.GetNumber(),
			"title":         pr.GetTitle(),
			"author":        pr.GetUser().GetLogin(),
			"merged_at":     pr.GetMergedAt().Format(time.RFC3339),
			"base_branch":   pr.GetBase().GetRef(),
			"labels":        labels,
			"files":         paths,
			"files_changed": len(files),
			"html_url":      pr.GetHTMLURL(),
		},
	}, warning, nil
}

// renderPullRequest formats the title, description and per-file diffs.
// Each diff is capped at maxDiffBytes.
func renderPullRequest(pr *gh.PullRequest, files []*gh.CommitFile, maxDiffBytes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", pr.GetTitle())
	fmt.Fprintf(&b, "PR #%d merged %s by %s\n",
		pr.GetNumber(), pr.GetMergedAt().Format("2006-01-02"), pr.GetUser().GetLogin())
	fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(pr.GetBody()))

	for _, file := range files {
		fmt.Fprintf(&b, "\nFile: %s\n", file.GetFilename())
		fmt.Fprintf(&b, "Status: %s (+%d -%d)\n", file.GetStatus(), file.GetAdditions(), file.GetDeletions())
		if patch := file.GetPatch(); patch != "" {
			fmt.Fprintf(&b, "Diff:\n%s\n", truncate(patch, maxDiffBytes))
		}
	}
	return b.String()
}
