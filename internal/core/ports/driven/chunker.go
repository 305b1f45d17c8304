package driven

import (
	"context"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// ChunkStats reports what one chunking pass did.
type ChunkStats struct {
	Documents int
	Chunks    int

	// Truncated counts documents that hit their source's chunk cap.
	Truncated int
}

// DocumentChunker splits fetched documents into chunks bounded by the
// policy for the active provider kind.
type DocumentChunker interface {
	// ChunkAll chunks every document. Empty documents produce no chunks.
	// A chunk above its ceiling is reported as domain.ErrChunkBudgetExceeded.
	ChunkAll(ctx context.Context, docs []domain.Document, kind domain.ProviderKind) ([]domain.Chunk, ChunkStats, error)
}
