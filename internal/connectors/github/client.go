package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/metrics"
	"github.com/custodia-labs/repolens/internal/retry"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// PerPage is the page size for list endpoints.
	PerPage = 100
)

// Ensure Client implements the interface.
var (
	_ driven.RepositoryInspector = (*Client)(nil)
	_ driven.QuotaReporter       = (*Client)(nil)
)

// Client wraps the go-github client with rate limiting, retries and
// error mapping.
type Client struct {
	gh          *gh.Client
	token       string
	rateLimiter *RateLimiter
	retry       retry.Policy

	mu       sync.Mutex
	branches map[domain.RepositoryID]string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimiter replaces the default rate limiter.
func WithRateLimiter(rl *RateLimiter) ClientOption {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// NewClientWithToken creates a GitHub client with a static access token.
// An empty token yields an unauthenticated client limited to public
// repositories and 60 requests per hour.
func NewClientWithToken(ctx context.Context, token string, opts ...ClientOption) *Client {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = DefaultTimeout

	c := NewClientWithHTTPClient(httpClient, opts...)
	c.token = token
	return c
}

// NewClientWithHTTPClient creates a GitHub client with a custom http.Client.
func NewClientWithHTTPClient(httpClient *http.Client, opts ...ClientOption) *Client {
	c := &Client{
		gh:          gh.NewClient(httpClient),
		rateLimiter: NewRateLimiter(),
		retry:       retry.DefaultPolicy(),
		branches:    make(map[domain.RepositoryID]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBaseURL points the client at another API root, such as GitHub
// Enterprise or a test server.
func (c *Client) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	c.gh.BaseURL = u
	return nil
}

// Token returns the access token, or "" for unauthenticated clients.
func (c *Client) Token() string {
	return c.token
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// Quota returns the rate window seen on the last response.
func (c *Client) Quota() domain.APIQuota {
	q := c.rateLimiter.Quota()
	return domain.APIQuota{Limit: q.Limit, Remaining: q.Remaining, Reset: q.Reset}
}

// Inspect fetches repository metadata and remembers its default branch.
func (c *Client) Inspect(ctx context.Context, repo domain.RepositoryID) (*domain.RepositoryInfo, error) {
	r, err := c.GetRepository(ctx, repo)
	if err != nil {
		return nil, err
	}
	return &domain.RepositoryInfo{
		Repository:    repo,
		DefaultBranch: r.GetDefaultBranch(),
		Description:   r.GetDescription(),
		Language:      r.GetLanguage(),
		Private:       r.GetPrivate(),
		HasIssues:     r.GetHasIssues(),
		Stars:         r.GetStargazersCount(),
	}, nil
}

// DefaultBranch returns the repository's default branch, fetching it once.
func (c *Client) DefaultBranch(ctx context.Context, repo domain.RepositoryID) (string, error) {
	c.mu.Lock()
	branch, ok := c.branches[repo]
	c.mu.Unlock()
	if ok {
		return branch, nil
	}

	r, err := c.GetRepository(ctx, repo)
	if err != nil {
		return "", err
	}
	return r.GetDefaultBranch(), nil
}

// GetRepository fetches a single repository.
func (c *Client) GetRepository(ctx context.Context, repo domain.RepositoryID) (*gh.Repository, error) {
	r, _, err := do(ctx, c, "get repo", func(ctx context.Context) (*gh.Repository, *gh.Response, error) {
		return c.gh.Repositories.Get(ctx, repo.Owner, repo.Name)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrRepoNotFound, repo, err)
		}
		return nil, err
	}

	c.mu.Lock()
	c.branches[repo] = r.GetDefaultBranch()
	c.mu.Unlock()
	return r, nil
}

// GetTree fetches the entire tree for a repository recursively.
// This is efficient for getting all file paths in one API call.
func (c *Client) GetTree(ctx context.Context, repo domain.RepositoryID, ref string) (*gh.Tree, error) {
	tree, _, err := do(ctx, c, "get tree", func(ctx context.Context) (*gh.Tree, *gh.Response, error) {
		return c.gh.Git.GetTree(ctx, repo.Owner, repo.Name, ref, true) // recursive=true
	})
	return tree, err
}

// GetBlob fetches a blob by its SHA and returns the decoded content.
func (c *Client) GetBlob(ctx context.Context, repo domain.RepositoryID, sha string) ([]byte, error) {
	blob, _, err := do(ctx, c, "get blob", func(ctx context.Context) (*gh.Blob, *gh.Response, error) {
		return c.gh.Git.GetBlob(ctx, repo.Owner, repo.Name, sha)
	})
	if err != nil {
		return nil, err
	}

	if blob.GetEncoding() == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(blob.GetContent())
		if err != nil {
			return nil, fmt.Errorf("decode blob %s: %w", sha, err)
		}
		return decoded, nil
	}
	return []byte(blob.GetContent()), nil
}

// ListIssuesPage lists one page of issues (all states, most recently
// updated first). It returns the next page number, or 0 on the last page.
// The list includes pull requests, which callers must skip.
func (c *Client) ListIssuesPage(
	ctx context.Context, repo domain.RepositoryID, page, perPage int,
) ([]*gh.Issue, int, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
	}
	issues, resp, err := do(ctx, c, "list issues", func(ctx context.Context) ([]*gh.Issue, *gh.Response, error) {
		return c.gh.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
	})
	if err != nil {
		return nil, 0, err
	}
	return issues, resp.NextPage, nil
}

// ListIssueComments lists up to limit comments on an issue, oldest first.
func (c *Client) ListIssueComments(
	ctx context.Context, repo domain.RepositoryID, number, limit int,
) ([]*gh.IssueComment, error) {
	var all []*gh.IssueComment
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: min(limit, PerPage)},
	}

	for len(all) < limit {
		comments, resp, err := do(ctx, c, "list comments", func(ctx context.Context) ([]*gh.IssueComment, *gh.Response, error) {
			return c.gh.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		})
		if err != nil {
			return all, err
		}
		all = append(all, comments...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListClosedPullRequestsPage lists one page of closed pull requests,
// most recently updated first. It returns the next page number, or 0 on
// the last page.
func (c *Client) ListClosedPullRequestsPage(
	ctx context.Context, repo domain.RepositoryID, page, perPage int,
) ([]*gh.PullRequest, int, error) {
	opts := &gh.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
	}
	prs, resp, err := do(ctx, c, "list pulls", func(ctx context.Context) ([]*gh.PullRequest, *gh.Response, error) {
		return c.gh.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
	})
	if err != nil {
		return nil, 0, err
	}
	return prs, resp.NextPage, nil
}

// ListPullRequestFiles lists up to limit changed files of a pull request.
// The second return value reports whether more files exist.
func (c *Client) ListPullRequestFiles(
	ctx context.Context, repo domain.RepositoryID, number, limit int,
) ([]*gh.CommitFile, bool, error) {
	opts := &gh.ListOptions{PerPage: min(limit, PerPage)}
	files, resp, err := do(ctx, c, "list pull files", func(ctx context.Context) ([]*gh.CommitFile, *gh.Response, error) {
		return c.gh.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
	})
	if err != nil {
		return nil, false, err
	}

	more := resp.NextPage != 0 || len(files) > limit
	if len(files) > limit {
		files = files[:limit]
	}
	return files, more, nil
}

// page carries a value and its response through the retry loop.
type page[T any] struct {
	value T
	resp  *gh.Response
}

// do performs one API call under the rate limiter and retry policy.
func do[T any](
	ctx context.Context, c *Client, endpoint string,
	call func(ctx context.Context) (T, *gh.Response, error),
) (T, *gh.Response, error) {
	p, err := retry.Do(ctx, c.retry, "github "+endpoint, func(ctx context.Context) (page[T], error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return page[T]{}, fmt.Errorf("rate limit wait: %w", err)
		}

		metrics.GitHubRequest(endpoint)
		value, resp, err := call(ctx)
		c.rateLimiter.Observe(resp)
		if err != nil {
			return page[T]{}, c.wrapError(err, endpoint)
		}
		return page[T]{value: value, resp: resp}, nil
	})
	return p.value, p.resp, err
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	// Rate limit errors are also ErrorResponses, so check them first
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		q := c.rateLimiter.Quota()
		if d := abuseErr.GetRetryAfter(); d > 0 {
			q.Reset = time.Now().Add(d)
		}
		return &RateLimitError{ResetAt: q.Reset, Remaining: 0, Limit: q.Limit}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
