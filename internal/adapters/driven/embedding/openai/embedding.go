// Package openai provides the remote embedding provider for OpenAI and
// OpenAI-compatible APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/retry"
)

// Ensure EmbeddingProvider implements the interface.
var _ driven.EmbeddingProvider = (*EmbeddingProvider)(nil)

// Default configuration values.
const (
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the OpenAI embedding provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout bounds each embedding request (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// Retry is the policy for transient failures.
	Retry retry.Policy
}

// EmbeddingProvider generates embeddings using the OpenAI API.
type EmbeddingProvider struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
	retry      retry.Policy
}

// NewEmbeddingProvider creates a new OpenAI embedding provider.
func NewEmbeddingProvider(cfg Config) (*EmbeddingProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	// Determine dimensions
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = domain.EmbeddingDimensions()[cfg.Model]
		if !ok {
			dimensions = 1536 // Default fallback
		}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &EmbeddingProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: dimensions,
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
	}, nil
}

// Kind reports the remote provider kind.
func (p *EmbeddingProvider) Kind() domain.ProviderKind {
	return domain.ProviderRemote
}

// EmbedBatch generates embeddings for multiple texts in one request.
// Server errors are retried; quota refusals and other 4xx responses are not.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	// Only include dimensions for text-embedding-3-* models
	if strings.HasPrefix(p.model, "text-embedding-3-") && p.dimensions > 0 {
		req.Dimensions = p.dimensions
	}

	return retry.Do(ctx, p.retry, "openai embeddings", func(ctx context.Context) ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.CreateEmbeddings(callCtx, req)
		if err != nil {
			return nil, classify(err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
		}

		// Order by index
		embeddings := make([][]float32, len(texts))
		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= len(texts) {
				return nil, fmt.Errorf("openai: embedding index %d out of range", data.Index)
			}
			embeddings[data.Index] = data.Embedding
		}
		return embeddings, nil
	})
}

// classify maps API failures onto domain errors.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		switch {
		case code == "insufficient_quota" || apiErr.Type == "insufficient_quota":
			return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized, apiErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", domain.ErrEmbeddingUnavailable, apiErr.Message)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError,
			apiErr.HTTPStatusCode == http.StatusRequestTimeout:
			return retry.Transient(fmt.Errorf("openai: %w", err))
		case apiErr.HTTPStatusCode >= http.StatusBadRequest:
			// The same request is refused again, so it is not retried.
			return fmt.Errorf("%w: openai rejected the request (%d): %s",
				domain.ErrInvalidInput, apiErr.HTTPStatusCode, apiErr.Message)
		default:
			return fmt.Errorf("openai: %w", err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, reqErr.Err)
		case reqErr.HTTPStatusCode >= http.StatusInternalServerError,
			reqErr.HTTPStatusCode == http.StatusRequestTimeout:
			return retry.Transient(fmt.Errorf("openai: %w", err))
		case reqErr.HTTPStatusCode >= http.StatusBadRequest:
			return fmt.Errorf("%w: openai rejected the request (%d): %v",
				domain.ErrInvalidInput, reqErr.HTTPStatusCode, reqErr.Err)
		}
	}

	return fmt.Errorf("openai: %w", err)
}

// Dimensions returns the embedding vector size.
func (p *EmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the name of the embedding model being used.
func (p *EmbeddingProvider) ModelName() string {
	return p.model
}

// Ping validates the API key by listing models.
// This is a lightweight check that validates the API key without running inference.
func (p *EmbeddingProvider) Ping(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai: ping failed: %w", classify(err))
	}
	return nil
}

// Close releases resources.
func (p *EmbeddingProvider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
