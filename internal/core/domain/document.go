package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Document is a unit of raw content produced by a fetcher.
// It is consumed by the chunker immediately and never persisted on its own.
type Document struct {
	// SourceType is the kind of content this document came from.
	SourceType SourceType

	// Identifier is stable across runs: a file path, "path#func@line",
	// "issue #12" or "PR #34".
	Identifier string

	// Text is the full textual content.
	Text string

	// Metadata holds source-specific attributes (file path, issue number,
	// labels, merge timestamp, ...).
	Metadata map[string]any
}

// Chunk is a bounded-size slice of a document's text.
type Chunk struct {
	// DocumentID is the parent document identifier.
	DocumentID string

	// Text is the chunk content, never above the policy ceiling.
	Text string

	// Index is the zero-based position within the document.
	Index int

	// Total is the number of chunks the document produced.
	Total int

	// Metadata is the parent metadata plus chunk_index and total_chunks.
	Metadata map[string]any
}

// ID returns a stable identifier for the chunk within a collection, so that
// re-ingesting unchanged content replaces rather than duplicates entries.
func (c Chunk) ID(collection string) string {
	return ChunkID(collection, c.DocumentID, c.Index)
}

// ChunkID derives the stable vector identifier for a chunk.
func ChunkID(collection, documentID string, index int) string {
	h := sha256.New()
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(documentID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// VectorRecord is the (text, vector, metadata) triple a vector store keeps.
type VectorRecord struct {
	ID          string
	DocumentID  string
	ChunkIndex  int
	TotalChunks int
	Text        string
	Vector      []float32
	Metadata    map[string]any
}

// Collection is a named, isolated partition of the vector store scoped to
// one repository and one source type.
type Collection struct {
	Name       string
	Repository RepositoryID
	SourceType SourceType

	// ProviderKind, Model and Dimensions record which embedding provider
	// wrote the collection. Queries must use the same kind and dimensions.
	ProviderKind ProviderKind
	Model        string
	Dimensions   int

	CreatedAt time.Time
}

// QueryRequest is a similarity query against one collection.
type QueryRequest struct {
	Collection   string
	Vector       []float32
	ProviderKind ProviderKind

	// Model is the embedding model that produced Vector. Empty skips the
	// model check.
	Model string
	K     int
}

// QueryMatch is a ranked similarity query result.
type QueryMatch struct {
	ID       string
	Text     string
	Metadata map[string]any
	Score    float64
}
