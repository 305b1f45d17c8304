package github

import (
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// Connector bundles the four GitHub fetchers sharing one client.
type Connector struct {
	client *Client

	Docs         *DocsFetcher
	Code         *CodeFetcher
	Issues       *IssuesFetcher
	PullRequests *PullRequestFetcher
}

// New creates the fetchers. segmenter may be nil.
func New(client *Client, trees TreeSource, segmenter driven.CodeSegmenter, cfg Config) *Connector {
	return &Connector{
		client:       client,
		Docs:         NewDocsFetcher(client, trees, cfg),
		Code:         NewCodeFetcher(client, trees, segmenter, cfg),
		Issues:       NewIssuesFetcher(client, cfg),
		PullRequests: NewPullRequestFetcher(client, cfg),
	}
}

// Fetchers returns the fetchers in stage order.
func (c *Connector) Fetchers() []driven.Fetcher {
	return []driven.Fetcher{c.Docs, c.Code, c.Issues, c.PullRequests}
}

// Inspector returns the repository validator.
func (c *Connector) Inspector() driven.RepositoryInspector {
	return c.client
}

// Quota returns the shared client's rate window.
func (c *Connector) Quota() driven.QuotaReporter {
	return c.client
}
