package driven

import (
	"context"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// VectorStore persists (text, vector, metadata) records in named collections
// and answers similarity queries against one collection at a time.
type VectorStore interface {
	// EnsureCollection creates the collection if missing and returns the
	// stored definition. An existing collection written by another provider
	// kind or with other dimensions fails with domain.ErrEmbeddingProviderMismatch.
	EnsureCollection(ctx context.Context, c domain.Collection) (*domain.Collection, error)

	// Upsert inserts or replaces records by ID. For every document in the
	// batch, chunks with an index at or above the record's TotalChunks are
	// removed, so a document that shrank leaves no stale tail.
	Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error

	// DeleteCollection removes a collection and all its records.
	DeleteCollection(ctx context.Context, name string) error

	// GetCollection returns a collection definition or domain.ErrNotFound.
	GetCollection(ctx context.Context, name string) (*domain.Collection, error)

	// ListCollections returns the collections of a repository.
	ListCollections(ctx context.Context, repo domain.RepositoryID) ([]domain.Collection, error)

	// CountDocuments returns the number of distinct documents in a collection.
	CountDocuments(ctx context.Context, collection string) (int, error)

	// CountChunks returns the number of records in a collection.
	CountChunks(ctx context.Context, collection string) (int, error)

	// Query returns the K records most similar to the query vector.
	Query(ctx context.Context, req domain.QueryRequest) ([]domain.QueryMatch, error)

	// Close releases resources.
	Close() error
}
