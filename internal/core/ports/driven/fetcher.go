package driven

import (
	"context"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// Fetcher produces the documents of one source type for a repository.
//
// Fetchers honour the limits in the request and report silently applied
// limits as warnings on the result. An unreachable repository or
// sub-resource is reported as domain.ErrSourceUnavailable.
type Fetcher interface {
	// SourceType returns the kind of documents this fetcher produces.
	SourceType() domain.SourceType

	// Fetch retrieves documents. Long fetches call req.OnProgress
	// periodically and stop early when ctx is done.
	Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error)
}

// RepositoryInspector validates that a repository is reachable.
type RepositoryInspector interface {
	// Inspect returns repository details or domain.ErrSourceUnavailable.
	Inspect(ctx context.Context, repo domain.RepositoryID) (*domain.RepositoryInfo, error)
}

// QuotaReporter exposes the last rate window the source API reported.
type QuotaReporter interface {
	Quota() domain.APIQuota
}
