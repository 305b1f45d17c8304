// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Fetcher: Produces documents for one source type of a repository
//   - RepositoryInspector: Validates a repository and reports its default branch
//   - DocumentChunker: Splits documents into chunks under a provider ceiling
//   - EmbeddingProvider: Turns chunk text into vectors (remote or local)
//   - VectorStore: Per-collection vector persistence and similarity query
//   - ProgressStore: Durable per-repository stage progress
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LicenseGate: Usage gate. When nil, every action is permitted.
//   - UsageStore: Monthly usage ledger behind the license gate.
//   - CodeSegmenter: Language-aware code splitting. When nil, code files
//     are ingested whole.
//   - ModelPreparer: One-time model download for local providers.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
