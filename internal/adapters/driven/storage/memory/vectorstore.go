package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// collection holds one collection's definition and records by id.
type collection struct {
	def     domain.Collection
	records map[string]domain.VectorRecord
}

// VectorStore is an in-memory implementation of driven.VectorStore.
type VectorStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		collections: make(map[string]*collection),
	}
}

// EnsureCollection creates the collection if missing and returns the stored
// definition.
func (s *VectorStore) EnsureCollection(_ context.Context, c domain.Collection) (*domain.Collection, error) {
	if c.Name == "" || c.Dimensions <= 0 || !c.ProviderKind.IsValid() {
		return nil, fmt.Errorf("%w: collection needs a name, provider kind and dimensions", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[c.Name]
	if !ok {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		existing = &collection{def: c, records: make(map[string]domain.VectorRecord)}
		s.collections[c.Name] = existing
	}
	if err := checkProvider(existing.def, c.ProviderKind, c.Model, c.Dimensions); err != nil {
		return nil, err
	}
	def := existing.def
	return &def, nil
}

// checkProvider fails when a collection was written by another provider
// kind, another model or with other dimensions. A model left empty on either
// side is not compared.
func checkProvider(c domain.Collection, kind domain.ProviderKind, model string, dims int) error {
	if c.ProviderKind != kind || c.Dimensions != dims {
		return fmt.Errorf("%w: collection %s holds %s vectors of %d dimensions, got %s with %d",
			domain.ErrEmbeddingProviderMismatch, c.Name, c.ProviderKind, c.Dimensions, kind, dims)
	}
	if c.Model != "" && model != "" && c.Model != model {
		return fmt.Errorf("%w: collection %s was embedded with %s, got %s",
			domain.ErrEmbeddingProviderMismatch, c.Name, c.Model, model)
	}
	return nil
}

// Upsert inserts or replaces records and trims the stale tail of every
// document in the batch. The batch is applied only if every record fits.
func (s *VectorStore) Upsert(_ context.Context, name string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("upserting into %s: collection %s: %w", name, name, domain.ErrNotFound)
	}
	for _, rec := range records {
		if len(rec.Vector) != c.def.Dimensions {
			return fmt.Errorf("%w: record %s has %d dimensions, collection %s expects %d",
				domain.ErrEmbeddingProviderMismatch, rec.ID, len(rec.Vector), name, c.def.Dimensions)
		}
	}

	totals := make(map[string]int)
	for _, rec := range records {
		rec.Vector = append([]float32(nil), rec.Vector...)
		rec.Metadata = maps.Clone(rec.Metadata)
		c.records[rec.ID] = rec
		totals[rec.DocumentID] = rec.TotalChunks
	}
	for id, rec := range c.records {
		if total, ok := totals[rec.DocumentID]; ok && rec.ChunkIndex >= total {
			delete(c.records, id)
		}
	}
	return nil
}

// DeleteCollection removes a collection and all its records.
func (s *VectorStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

// GetCollection returns a collection definition.
func (s *VectorStore) GetCollection(_ context.Context, name string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	def := c.def
	return &def, nil
}

// ListCollections returns the collections of a repository, by name.
func (s *VectorStore) ListCollections(_ context.Context, repo domain.RepositoryID) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Collection
	for _, c := range s.collections {
		if strings.EqualFold(c.def.Repository.String(), repo.String()) {
			out = append(out, c.def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CountDocuments returns the number of distinct documents in a collection.
func (s *VectorStore) CountDocuments(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	docs := make(map[string]struct{})
	for _, rec := range c.records {
		docs[rec.DocumentID] = struct{}{}
	}
	return len(docs), nil
}

// CountChunks returns the number of records in a collection.
func (s *VectorStore) CountChunks(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	return len(c.records), nil
}

// Query ranks every record of the collection by cosine similarity.
func (s *VectorStore) Query(_ context.Context, req domain.QueryRequest) ([]domain.QueryMatch, error) {
	if req.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[req.Collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", req.Collection, domain.ErrNotFound)
	}
	if err := checkProvider(c.def, req.ProviderKind, req.Model, len(req.Vector)); err != nil {
		return nil, err
	}

	matches := make([]domain.QueryMatch, 0, len(c.records))
	for _, rec := range c.records {
		matches = append(matches, domain.QueryMatch{
			ID:       rec.ID,
			Text:     rec.Text,
			Metadata: maps.Clone(rec.Metadata),
			Score:    domain.CosineSimilarity(req.Vector, rec.Vector),
		})
	}
	return domain.RankMatches(matches, req.K), nil
}

// Close releases resources (no-op for memory store).
func (s *VectorStore) Close() error {
	return nil
}
