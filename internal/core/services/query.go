package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
	"github.com/custodia-labs/repolens/internal/logger"
)

// MaxQueryResults caps k for a similarity query.
const MaxQueryResults = 50

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService answers similarity queries with the process's embedding
// provider. A collection can only be queried with the provider kind and
// dimensions that wrote it.
type QueryService struct {
	embedder driven.EmbeddingProvider
	vectors  driven.VectorStore
	gate     driven.LicenseGate
}

// NewQueryService creates a query service. gate may be nil.
func NewQueryService(embedder driven.EmbeddingProvider, vectors driven.VectorStore, gate driven.LicenseGate) *QueryService {
	if gate == nil {
		gate = permitAll{}
	}
	return &QueryService{
		embedder: embedder,
		vectors:  vectors,
		gate:     gate,
	}
}

// Query embeds text and returns the k nearest records of a collection.
func (s *QueryService) Query(ctx context.Context, collection, text string, k int) ([]domain.QueryMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is required", domain.ErrInvalidInput)
	}
	if k <= 0 || k > MaxQueryResults {
		return nil, fmt.Errorf("%w: k must be between 1 and %d", domain.ErrInvalidInput, MaxQueryResults)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable)
	}

	coll, err := s.vectors.GetCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if coll.ProviderKind != s.embedder.Kind() {
		return nil, fmt.Errorf("%w: collection %s was built with the %s provider, %s is active",
			domain.ErrEmbeddingProviderMismatch, coll.Name, coll.ProviderKind, s.embedder.Kind())
	}

	permitted, err := s.gate.IsActionPermitted(ctx, driven.ActionQuery)
	if err != nil {
		return nil, fmt.Errorf("check usage limit: %w", err)
	}
	if !permitted {
		return nil, fmt.Errorf("%w: %s", domain.ErrActionNotPermitted, driven.ActionQuery)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: provider returned %d vectors", len(vectors))
	}

	matches, err := s.vectors.Query(ctx, domain.QueryRequest{
		Collection:   coll.Name,
		Vector:       vectors[0],
		ProviderKind: s.embedder.Kind(),
		Model:        s.embedder.ModelName(),
		K:            k,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", coll.Name, err)
	}

	if err := s.gate.RecordUsage(ctx, driven.ActionQuery, coll.Repository); err != nil {
		logger.Warn("Record usage for %s: %v", coll.Repository, err)
	}

	logger.Debug("Query on %s returned %d matches", coll.Name, len(matches))
	return matches, nil
}

// QueryRepository queries the collection of one source type of a repository.
func (s *QueryService) QueryRepository(
	ctx context.Context,
	repo domain.RepositoryID,
	source domain.SourceType,
	text string,
	k int,
) ([]domain.QueryMatch, error) {
	if repo.IsZero() {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	if !source.IsValid() {
		return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, source)
	}
	return s.Query(ctx, domain.CollectionName(repo, source), text, k)
}
