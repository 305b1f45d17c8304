// Package ai provides factory functions for creating the embedding provider.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/repolens/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/repolens/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for provider connectivity validation.
const pingTimeout = 5 * time.Second

// CreateEmbeddingProvider creates the provider selected by settings.
func CreateEmbeddingProvider(settings *domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: no embedding settings", domain.ErrEmbeddingUnavailable)
	}

	switch settings.Provider {
	case domain.ProviderLocal:
		return createOllamaEmbedding(settings), nil

	case domain.ProviderRemote:
		if settings.APIKey == "" {
			return nil, fmt.Errorf("%w: remote provider needs an API key (set OPENAI_API_KEY)",
				domain.ErrEmbeddingUnavailable)
		}
		return createOpenAIEmbedding(settings)

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q",
			domain.ErrEmbeddingUnavailable, settings.Provider)
	}
}

// CreateAndValidateEmbeddingProvider creates the provider and validates
// connectivity. Returns the provider if successful, or an error with guidance.
func CreateAndValidateEmbeddingProvider(
	ctx context.Context, settings *domain.EmbeddingSettings,
) (driven.EmbeddingProvider, error) {
	provider, err := CreateEmbeddingProvider(settings)
	if err != nil {
		return nil, err
	}

	// Validate connectivity.
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := provider.Ping(pingCtx); err != nil {
		provider.Close()
		return nil, fmt.Errorf("%w: %s provider unreachable (%w). %s",
			domain.ErrEmbeddingUnavailable, provider.Kind(), err, hint(provider.Kind()))
	}

	return provider, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating
// a provider and pinging it.
func ValidateEmbeddingConfig(ctx context.Context, settings *domain.EmbeddingSettings) error {
	provider, err := CreateAndValidateEmbeddingProvider(ctx, settings)
	if err != nil {
		return err
	}
	return provider.Close()
}

func hint(kind domain.ProviderKind) string {
	if kind == domain.ProviderLocal {
		return "Start Ollama with 'ollama serve' or switch with 'repolens settings set embedding.provider remote'"
	}
	return "Check the API key and base URL with 'repolens settings show'"
}

// createOllamaEmbedding creates an Ollama embedding provider.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingProvider {
	return ollamaembed.NewEmbeddingProvider(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model(),
		Timeout:    settings.CallTimeout,
		Dimensions: domain.EmbeddingDimensions()[settings.Model()],
	})
}

// createOpenAIEmbedding creates an OpenAI embedding provider.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	provider, err := openaiembed.NewEmbeddingProvider(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model(),
		Timeout:    settings.CallTimeout,
		Dimensions: domain.EmbeddingDimensions()[settings.Model()],
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}
