// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// EmbeddingProvider generates vector embeddings from text.
//
// Exactly one provider is selected per process. Collections record the
// provider kind and dimensions that wrote them, so switching providers
// requires re-ingesting.
//
// Implementations:
//   - Remote: OpenAI-compatible API (text-embedding-3-small)
//   - Local: Ollama (nomic-embed-text, all-minilm)
type EmbeddingProvider interface {
	// Kind reports whether this is the remote or local provider.
	Kind() domain.ProviderKind

	// EmbedBatch generates one embedding per input text, in order.
	// Remote quota refusals are returned as domain.ErrQuotaExceeded.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 768, 1536).
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the provider is reachable by making a lightweight request.
	// This is used at startup to fail fast on a bad configuration.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ModelPreparer is implemented by providers that must download a model
// before first use. The status callback receives informational messages
// only; it is not an error channel.
type ModelPreparer interface {
	Prepare(ctx context.Context, status func(msg string)) error
}
