// Package ollama provides the local embedding provider backed by Ollama.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/retry"
)

// Ensure EmbeddingProvider implements the interfaces.
var (
	_ driven.EmbeddingProvider = (*EmbeddingProvider)(nil)
	_ driven.ModelPreparer     = (*EmbeddingProvider)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "nomic-embed-text"
	DefaultTimeout     = 60 * time.Second
	DefaultPartSize    = 16
	DefaultConcurrency = 4
)

// Config holds configuration for the Ollama embedding provider.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Timeout bounds each request (default: 60s).
	Timeout time.Duration

	// Dimensions is the embedding vector size. Zero looks the model up
	// and otherwise learns it from the first embedding.
	Dimensions int

	// PartSize is the number of texts per request; a batch is split into
	// parts embedded concurrently.
	PartSize int

	// Concurrency caps parallel requests per batch.
	Concurrency int

	// Retry is the policy for transient failures.
	Retry retry.Policy
}

// EmbeddingProvider generates embeddings using Ollama.
type EmbeddingProvider struct {
	client      *http.Client
	baseURL     string
	model       string
	dimensions  atomic.Int64
	partSize    int
	concurrency int
	retry       retry.Policy
}

// errModelMissing marks a 404 for a model Ollama has not pulled.
var errModelMissing = errors.New("model not found")

// embedRequest is the Ollama /api/embed request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama /api/embed response format.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewEmbeddingProvider creates a new Ollama embedding provider.
func NewEmbeddingProvider(cfg Config) *EmbeddingProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = domain.EmbeddingDimensions()[modelBase(cfg.Model)]
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = DefaultPartSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	p := &EmbeddingProvider{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		partSize:    cfg.PartSize,
		concurrency: cfg.Concurrency,
		retry:       cfg.Retry,
	}
	p.dimensions.Store(int64(cfg.Dimensions))
	return p
}

// modelBase strips an Ollama tag such as ":latest".
func modelBase(model string) string {
	base, _, _ := strings.Cut(model, ":")
	return base
}

// Kind reports the local provider kind.
func (p *EmbeddingProvider) Kind() domain.ProviderKind {
	return domain.ProviderLocal
}

// EmbedBatch splits texts into parts and embeds them concurrently.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for start := 0; start < len(texts); start += p.partSize {
		end := min(start+p.partSize, len(texts))
		g.Go(func() error {
			part, err := retry.Do(gctx, p.retry, "ollama embed", func(ctx context.Context) ([][]float32, error) {
				return p.embed(ctx, texts[start:end])
			})
			if err != nil {
				return fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
			}
			copy(embeddings[start:end], part)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if dims := len(embeddings[0]); dims > 0 {
		p.dimensions.CompareAndSwap(0, int64(dims))
	}
	return embeddings, nil
}

// embed performs one /api/embed request.
func (p *EmbeddingProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out embedResponse
	if err := p.post(ctx, "/api/embed", embedRequest{Model: p.model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

// post sends a JSON request and decodes a JSON response.
func (p *EmbeddingProvider) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyTransport marks refused connections as an unavailable provider
// and other network errors as transient.
func classifyTransport(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: ollama not reachable: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return retry.Transient(fmt.Errorf("send request: %w", err))
}

func classifyStatus(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		body = []byte("failed to read response")
	}
	msg := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: ollama %w (run 'ollama pull'): %s",
			domain.ErrEmbeddingUnavailable, errModelMissing, msg)
	case resp.StatusCode >= http.StatusInternalServerError:
		return retry.Transient(fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, msg))
	default:
		return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, msg)
	}
}

// Dimensions returns the embedding vector size, or 0 if not yet known.
func (p *EmbeddingProvider) Dimensions() int {
	return int(p.dimensions.Load())
}

// ModelName returns the name of the embedding model being used.
func (p *EmbeddingProvider) ModelName() string {
	return p.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
// This is a lightweight check that validates connectivity without running inference.
func (p *EmbeddingProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", classifyTransport(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: ping failed: %w", classifyStatus(resp))
	}
	return nil
}

// pullStatus is one line of the streaming /api/pull response.
type pullStatus struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Error     string `json:"error"`
}

// Prepare pulls the model if Ollama does not have it yet. Download
// progress is reported through status.
func (p *EmbeddingProvider) Prepare(ctx context.Context, status func(msg string)) error {
	if status == nil {
		status = func(string) {}
	}

	err := p.post(ctx, "/api/show", map[string]string{"model": p.model}, nil)
	switch {
	case err == nil:
		return p.detectDimensions(ctx)
	case !errors.Is(err, errModelMissing):
		return fmt.Errorf("check model %s: %w", p.model, err)
	}

	status(fmt.Sprintf("pulling embedding model %s", p.model))
	jsonBody, err := json.Marshal(map[string]any{"model": p.model, "stream": true})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/pull", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls outlive the per-request timeout.
	pullClient := &http.Client{Transport: p.client.Transport}
	resp, err := pullClient.Do(req)
	if err != nil {
		return fmt.Errorf("pull model %s: %w", p.model, classifyTransport(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pull model %s: %w", p.model, classifyStatus(resp))
	}

	lastPct := -1
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line pullStatus
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("%w: pull model %s: %s", domain.ErrEmbeddingUnavailable, p.model, line.Error)
		}
		if line.Total > 0 {
			pct := int(line.Completed * 100 / line.Total)
			if pct/10 != lastPct/10 {
				lastPct = pct
				status(fmt.Sprintf("%s: %d%%", line.Status, pct))
			}
			continue
		}
		status(line.Status)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pull progress: %w", err)
	}
	return p.detectDimensions(ctx)
}

// detectDimensions embeds a short text when the model's vector size is not
// known yet, so collections can be created before the first batch.
func (p *EmbeddingProvider) detectDimensions(ctx context.Context) error {
	if p.Dimensions() > 0 {
		return nil
	}
	if _, err := p.EmbedBatch(ctx, []string{"dimension check"}); err != nil {
		return fmt.Errorf("detect dimensions of %s: %w", p.model, err)
	}
	return nil
}

// Close releases resources.
func (p *EmbeddingProvider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
