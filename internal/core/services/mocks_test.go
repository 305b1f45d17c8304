package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/postprocessors"
)

var testRepo = domain.RepositoryID{Owner: "acme", Name: "widgets"}

// ==================== Fetcher ====================

// mockFetcher implements driven.Fetcher with fixed documents. Issue and pull
// request fetchers honour MaxIssues and MaxPRs.
type mockFetcher struct {
	source domain.SourceType

	mu      sync.Mutex
	docs    []domain.Document
	result  *domain.FetchResult
	err     error
	calls   int
	lastReq domain.FetchRequest

	// block, when set, holds Fetch until it is closed or ctx is done.
	block chan struct{}
}

func newMockFetcher(source domain.SourceType, docs ...domain.Document) *mockFetcher {
	return &mockFetcher{source: source, docs: docs}
}

func (f *mockFetcher) SourceType() domain.SourceType { return f.source }

func (f *mockFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	docs := append([]domain.Document(nil), f.docs...)
	result, err, block := f.result, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		out := *result
		return &out, nil
	}

	limit := 0
	switch f.source {
	case domain.SourceIssue:
		limit = req.Limits.MaxIssues
	case domain.SourcePullRequest:
		limit = req.Limits.MaxPRs
	}
	termination := domain.TerminationSourceExhausted
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
		termination = domain.TerminationCollectedEnough
	}

	if req.OnProgress != nil {
		req.OnProgress(domain.FetchProgress{Examined: len(docs), Collected: len(docs), Message: "fetching"})
	}
	return &domain.FetchResult{
		Documents:   docs,
		Examined:    len(docs),
		Collected:   len(docs),
		Termination: termination,
	}, nil
}

func (f *mockFetcher) set(fn func(f *mockFetcher)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *mockFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ==================== Inspector ====================

// mockInspector implements driven.RepositoryInspector.
type mockInspector struct {
	branch string
	err    error
}

func (m *mockInspector) Inspect(_ context.Context, repo domain.RepositoryID) (*domain.RepositoryInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.RepositoryInfo{Repository: repo, DefaultBranch: m.branch, HasIssues: true}, nil
}

// ==================== Embedder ====================

// mockEmbedder implements driven.EmbeddingProvider with deterministic
// vectors derived from the text.
type mockEmbedder struct {
	kind domain.ProviderKind
	dims int

	mu      sync.Mutex
	batches [][]string

	// failAt is the 1-based batch number from which EmbedBatch fails.
	failAt  int
	failErr error
}

func newMockEmbedder(kind domain.ProviderKind) *mockEmbedder {
	return &mockEmbedder{kind: kind, dims: 8}
}

func (m *mockEmbedder) Kind() domain.ProviderKind { return m.kind }
func (m *mockEmbedder) Dimensions() int           { return m.dims }
func (m *mockEmbedder) ModelName() string         { return "mock-embed" }
func (m *mockEmbedder) Ping(context.Context) error {
	return nil
}
func (m *mockEmbedder) Close() error { return nil }

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.batches = append(m.batches, texts)
	n := len(m.batches)
	m.mu.Unlock()

	if m.failAt > 0 && n >= m.failAt {
		return nil, m.failErr
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vectorFor(text, m.dims)
	}
	return out, nil
}

func (m *mockEmbedder) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// preparingEmbedder is a mockEmbedder that must download its model first.
type preparingEmbedder struct {
	*mockEmbedder

	prepareErr error
	prepares   int
}

func (p *preparingEmbedder) Prepare(_ context.Context, status func(msg string)) error {
	p.mu.Lock()
	p.prepares++
	p.mu.Unlock()
	if p.prepareErr != nil {
		return p.prepareErr
	}
	status("pulling mock-embed")
	return nil
}

// vectorFor derives a non-zero vector from a text.
func vectorFor(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	sum := h.Sum64()
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32((sum>>(uint(i)*8))&0xff) + 1
	}
	return v
}

// ==================== Gate ====================

// mockGate implements driven.LicenseGate.
type mockGate struct {
	denied bool
	err    error

	mu       sync.Mutex
	recorded []string
}

func (g *mockGate) IsActionPermitted(context.Context, string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return !g.denied, nil
}

func (g *mockGate) RecordUsage(_ context.Context, action string, _ domain.RepositoryID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorded = append(g.recorded, action)
	return nil
}

func (g *mockGate) recordedActions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.recorded...)
}

// ==================== Fixtures ====================

// testEnv wires an orchestrator to mocks and memory stores.
type testEnv struct {
	fetchers map[domain.SourceType]*mockFetcher
	embedder *mockEmbedder
	vectors  *memory.VectorStore
	progress *memory.ProgressStore
	gate     *mockGate
	orch     *IngestionOrchestrator
}

type envConfig struct {
	kind     domain.ProviderKind
	chunking domain.ChunkingSettings
	settings domain.IngestionSettings
	fetchers []driven.Fetcher
	opts     []OrchestratorOption
}

func newTestEnv(t *testing.T, configure ...func(*envConfig)) *testEnv {
	t.Helper()

	cfg := envConfig{
		kind:     domain.ProviderLocal,
		chunking: domain.DefaultChunkingSettings(),
		settings: domain.DefaultSettings().Ingestion,
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	env := &testEnv{
		fetchers: make(map[domain.SourceType]*mockFetcher),
		embedder: newMockEmbedder(cfg.kind),
		vectors:  memory.NewVectorStore(),
		progress: memory.NewProgressStore(),
		gate:     &mockGate{},
	}

	fetchers := cfg.fetchers
	for _, source := range domain.SourceTypes() {
		f := newMockFetcher(source)
		env.fetchers[source] = f
		if !hasFetcher(fetchers, source) {
			fetchers = append(fetchers, f)
		}
	}

	opts := append([]OrchestratorOption{WithLicenseGate(env.gate)}, cfg.opts...)
	env.orch = NewIngestionOrchestrator(
		fetchers,
		&mockInspector{branch: "main"},
		postprocessors.NewDefaultPipeline(cfg.chunking),
		env.embedder,
		env.vectors,
		env.progress,
		cfg.settings,
		opts...,
	)
	require.NotNil(t, env.orch)
	return env
}

func hasFetcher(fetchers []driven.Fetcher, source domain.SourceType) bool {
	for _, f := range fetchers {
		if f.SourceType() == source {
			return true
		}
	}
	return false
}

// markdown builds a documentation file of about size bytes in 100-byte
// paragraphs.
func markdown(path string, size int) domain.Document {
	para := strings.Repeat("w", 97) + ".\n\n"
	return domain.Document{
		SourceType: domain.SourceDocumentation,
		Identifier: path,
		Text:       "# " + path + "\n\n" + strings.Repeat(para, size/100),
		Metadata:   map[string]any{"file_path": path},
	}
}

// issue builds a short issue document.
func issue(number int) domain.Document {
	return domain.Document{
		SourceType: domain.SourceIssue,
		Identifier: fmt.Sprintf("issue #%d", number),
		Text:       "Widget breaks when spun " + strings.Repeat("fast ", number),
		Metadata:   map[string]any{"issue_number": number},
	}
}
