package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// ==================== Vector Store ====================

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// EnsureCollection creates the collection if missing and returns the stored
// definition.
func (s *vectorStore) EnsureCollection(ctx context.Context, c domain.Collection) (*domain.Collection, error) {
	if c.Name == "" || c.Dimensions <= 0 || !c.ProviderKind.IsValid() {
		return nil, fmt.Errorf("%w: collection needs a name, provider kind and dimensions", domain.ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.store.now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO collections (name, repo_key, owner, repo, source_type, provider_kind, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, c.Name, repoKey(c.Repository), c.Repository.Owner, c.Repository.Name, string(c.SourceType),
		string(c.ProviderKind), c.Model, c.Dimensions, c.CreatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	stored, err := s.GetCollection(ctx, c.Name)
	if err != nil {
		return nil, err
	}
	if err := checkProvider(stored, c.ProviderKind, c.Model, c.Dimensions); err != nil {
		return nil, err
	}
	return stored, nil
}

// checkProvider fails when a collection was written by another provider
// kind, another model or with other dimensions. A model left empty on either
// side is not compared.
func checkProvider(c *domain.Collection, kind domain.ProviderKind, model string, dims int) error {
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
// document in the batch.
func (s *vectorStore) Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	c, err := s.GetCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", collection, err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (collection, id, document_id, chunk_index, total_chunks, content, embedding, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			total_chunks = excluded.total_chunks,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := s.store.now()
	totals := make(map[string]int)
	for _, rec := range records {
		if len(rec.Vector) != c.Dimensions {
			return fmt.Errorf("%w: record %s has %d dimensions, collection %s expects %d",
				domain.ErrEmbeddingProviderMismatch, rec.ID, len(rec.Vector), collection, c.Dimensions)
		}
		metadataJSON, err := marshalMetadata(rec.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, rec.ID, rec.DocumentID, rec.ChunkIndex,
			rec.TotalChunks, rec.Text, float32SliceToBytes(rec.Vector), metadataJSON, now); err != nil {
			return fmt.Errorf("saving vector: %w", err)
		}
		totals[rec.DocumentID] = rec.TotalChunks
	}

	for documentID, total := range totals {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vectors WHERE collection = ? AND document_id = ? AND chunk_index >= ?
		`, collection, documentID, total); err != nil {
			return fmt.Errorf("trimming stale chunks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteCollection removes a collection and all its records.
func (s *vectorStore) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM vectors WHERE collection = ?", name); err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetCollection returns a collection definition.
func (s *vectorStore) GetCollection(ctx context.Context, name string) (*domain.Collection, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT name, owner, repo, source_type, provider_kind, model, dimensions, created_at
		FROM collections WHERE name = ?
	`, name)

	c, err := scanCollection(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	return c, err
}

// ListCollections returns the collections of a repository.
func (s *vectorStore) ListCollections(ctx context.Context, repo domain.RepositoryID) ([]domain.Collection, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT name, owner, repo, source_type, provider_kind, model, dimensions, created_at
		FROM collections WHERE repo_key = ?
		ORDER BY name
	`, repoKey(repo))
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer rows.Close()

	var collections []domain.Collection //nolint:prealloc // size unknown from query
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collections: %w", err)
	}

	return collections, nil
}

// CountDocuments returns the number of distinct documents in a collection.
func (s *vectorStore) CountDocuments(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT document_id) FROM vectors WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// CountChunks returns the number of records in a collection.
func (s *vectorStore) CountChunks(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vectors WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Query ranks every record of the collection by cosine similarity.
func (s *vectorStore) Query(ctx context.Context, req domain.QueryRequest) ([]domain.QueryMatch, error) {
	if req.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	c, err := s.GetCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	if err := checkProvider(c, req.ProviderKind, req.Model, len(req.Vector)); err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, content, embedding, metadata
		FROM vectors WHERE collection = ?
	`, req.Collection)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var matches []domain.QueryMatch //nolint:prealloc // size unknown from query
	for rows.Next() {
		var m domain.QueryMatch
		var blob []byte
		var metadataJSON string
		if err := rows.Scan(&m.ID, &m.Text, &blob, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		if m.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
			return nil, err
		}
		m.Score = domain.CosineSimilarity(req.Vector, bytesToFloat32Slice(blob))
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}

	return domain.RankMatches(matches, req.K), nil
}

// Close closes the underlying store.
func (s *vectorStore) Close() error {
	return s.store.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCollection scans a single collection row.
func scanCollection(row rowScanner) (*domain.Collection, error) {
	var c domain.Collection
	var source, kind string
	if err := row.Scan(&c.Name, &c.Repository.Owner, &c.Repository.Name, &source, &kind,
		&c.Model, &c.Dimensions, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning collection: %w", err)
	}
	c.SourceType = domain.SourceType(source)
	c.ProviderKind = domain.ProviderKind(kind)
	return &c, nil
}
