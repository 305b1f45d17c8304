package github

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/logger"
	"github.com/custodia-labs/repolens/internal/metrics"
)

// truncationMarker ends any text cut to fit a byte budget.
const truncationMarker = "\n... [truncated]"

// Ensure IssuesFetcher implements the interface.
var _ driven.Fetcher = (*IssuesFetcher)(nil)

// IssuesFetcher produces one document per issue with its discussion.
type IssuesFetcher struct {
	client *Client
	cfg    Config
}

// NewIssuesFetcher creates an issues fetcher.
func NewIssuesFetcher(client *Client, cfg Config) *IssuesFetcher {
	return &IssuesFetcher{client: client, cfg: cfg}
}

// SourceType returns the issue source type.
func (f *IssuesFetcher) SourceType() domain.SourceType {
	return domain.SourceIssue
}

// Fetch collects up to Limits.MaxIssues issues, most recently updated
// first. Pull requests returned by the issues API are skipped.
func (f *IssuesFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	maxIssues := req.Limits.MaxIssues
	if maxIssues <= 0 {
		maxIssues = domain.DefaultMaxIssues
	}

	result := &domain.FetchResult{}
	progress := startProgress(f.cfg.YieldInterval, "collecting issues", req.OnProgress)
	defer progress.Stop()

	perPage := min(maxIssues, PerPage)
	page := 1
	for result.Termination == domain.TerminationNone {
		issues, next, err := f.client.ListIssuesPage(ctx, req.Repository, page, perPage)
		if err != nil {
			if result.Collected == 0 {
				return nil, fmt.Errorf("list issues for %s: %w", req.Repository, err)
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("issue listing stopped early: %v", err))
			result.Termination = domain.TerminationSourceExhausted
			break
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			result.Examined++
			progress.examined.Add(1)

			doc, warning := f.document(ctx, req.Repository, issue)
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
				metrics.FetchWarning(string(domain.SourceIssue))
			}
			result.Documents = append(result.Documents, doc)
			result.Collected++
			progress.collected.Add(1)

			if result.Collected >= maxIssues {
				result.Termination = domain.TerminationCollectedEnough
				break
			}
		}

		if result.Termination == domain.TerminationNone && next == 0 {
			result.Termination = domain.TerminationSourceExhausted
		}
		page = next
	}

	logger.Debug("issues %s: %d collected (%s)", req.Repository, result.Collected, result.Termination)
	return result, nil
}

// document renders an issue and its comments. Comment failures are
// reported as a warning and the issue is kept without them.
func (f *IssuesFetcher) document(ctx context.Context, repo domain.RepositoryID, issue *gh.Issue) (domain.Document, string) {
	var warning string
	var comments []*gh.IssueComment
	if issue.GetComments() > 0 && f.cfg.MaxCommentsPerIssue > 0 {
		var err error
		comments, err = f.client.ListIssueComments(ctx, repo, issue.GetNumber(), f.cfg.MaxCommentsPerIssue)
		if err != nil {
			warning = fmt.Sprintf("comments for issue #%d unavailable: %v", issue.GetNumber(), err)
		}
	}

	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = l.GetName()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Issue #%d: %s\n", issue.GetNumber(), issue.GetTitle())
	fmt.Fprintf(&b, "State: %s\n", issue.GetState())
	if len(labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(labels, ", "))
	}
	fmt.Fprintf(&b, "\n%s\n", issue.GetBody())
	if len(comments) > 0 {
		b.WriteString("\nComments:\n")
		b.WriteString(truncate(renderComments(comments), f.cfg.MaxDiscussionBytes))
	}

	return domain.Document{
		SourceType: domain.SourceIssue,
		Identifier: fmt.Sprintf("issue #%d", issue.GetNumber()),
		Text:       b.String(),
		Metadata: map[string]any{
			"issue_number": issue.GetNumber(),
			"title":        issue.GetTitle(),
			"state":        issue.GetState(),
			"labels":       labels,
			"author":       issue.GetUser().GetLogin(),
			"comments":     issue.GetComments(),
			"html_url":     issue.GetHTMLURL(),
			"created_at":   issue.GetCreatedAt().Format(time.RFC3339),
			"updated_at":   issue.GetUpdatedAt().Format(time.RFC3339),
		},
	}, warning
}

func renderComments(comments []*gh.IssueComment) string {
	var b strings.Builder
	for _, c := range comments {
		fmt.Fprintf(&b, "[%s]: %s\n", c.GetUser().GetLogin(), strings.TrimSpace(c.GetBody()))
	}
	return b.String()
}

// truncate cuts s to at most limit bytes on a rune boundary and appends
// the truncation marker. A non-positive limit leaves s unchanged.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
