package driving

import (
	"context"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// QueryService answers similarity queries against ingested collections.
type QueryService interface {
	// Query embeds text with the active provider and returns the k nearest
	// records of a collection.
	Query(ctx context.Context, collection, text string, k int) ([]domain.QueryMatch, error)

	// QueryRepository queries the collection of one source type of a repository.
	QueryRepository(ctx context.Context, repo domain.RepositoryID, source domain.SourceType, text string, k int) ([]domain.QueryMatch, error)
}
