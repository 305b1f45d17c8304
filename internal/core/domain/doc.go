// Package domain defines the core entities for repolens ingestion.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: raw content produced by a fetcher, before chunking
//   - Chunk: a bounded slice of a document, the unit that gets embedded
//   - VectorRecord: the (text, vector, metadata) triple a vector store keeps
//   - Collection: an isolated vector partition for one repository and source type
//   - IngestionProgress: per-repository state of the four ingestion stages
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
