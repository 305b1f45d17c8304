package postprocessors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/postprocessors/chunker"
)

// mockProcessor is a test processor that rewrites or rejects documents.
type mockProcessor struct {
	name   string
	suffix string
	err    error
	calls  int
}

func (m *mockProcessor) Name() string {
	return m.name
}

func (m *mockProcessor) Process(doc domain.Document) (domain.Document, error) {
	m.calls++
	if m.err != nil {
		return doc, m.err
	}
	doc.Text += m.suffix
	return doc, nil
}

func doc(id, text string) domain.Document {
	return domain.Document{SourceType: domain.SourceDocumentation, Identifier: id, Text: text}
}

func TestNewPipeline(t *testing.T) {
	p := NewPipeline(nil)
	if p == nil {
		t.Fatal("expected non-nil pipeline")
	}
	if p.Len() != 0 {
		t.Errorf("expected 0 processors, got %d", p.Len())
	}
}

func TestPipeline_Add(t *testing.T) {
	p := NewPipeline(nil)
	p.Add(&mockProcessor{name: "test"})

	if p.Len() != 1 {
		t.Errorf("expected 1 processor, got %d", p.Len())
	}
}

func TestPipeline_ChunkAll_ProcessorsRunInOrder(t *testing.T) {
	first := &mockProcessor{name: "first", suffix: " one"}
	second := &mockProcessor{name: "second", suffix: " two"}
	p := NewPipeline(nil, first, second)

	chunks, stats, err := p.ChunkAll(context.Background(), []domain.Document{doc("README.md", "text")}, domain.ProviderLocal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "text one two" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if stats.Documents != 1 || stats.Chunks != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPipeline_ChunkAll_ProcessorError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPipeline(nil, &mockProcessor{name: "broken", err: boom})

	_, _, err := p.ChunkAll(context.Background(), []domain.Document{doc("a.md", "text")}, domain.ProviderLocal)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "processor broken") {
		t.Errorf("expected processor name in error, got %q", err.Error())
	}
}

func TestPipeline_ChunkAll_SkipsEmptyDocuments(t *testing.T) {
	p := NewPipeline(nil)

	chunks, stats, err := p.ChunkAll(context.Background(),
		[]domain.Document{doc("empty.md", "  \n"), doc("a.md", "hello")}, domain.ProviderRemote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || stats.Documents != 1 {
		t.Errorf("expected one chunked document, got %d chunks and %+v", len(chunks), stats)
	}
}

func TestPipeline_ChunkAll_UsesProviderCeiling(t *testing.T) {
	p := NewDefaultPipeline(domain.DefaultChunkingSettings())
	para := strings.Repeat("x", 98) + "\n\n"
	large := doc("guide.md", strings.Repeat(para, 80)) // 8000 bytes

	local, _, err := p.ChunkAll(context.Background(), []domain.Document{large}, domain.ProviderLocal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	remote, _, err := p.ChunkAll(context.Background(), []domain.Document{large}, domain.ProviderRemote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(local) != 1 {
		t.Errorf("expected one local chunk, got %d", len(local))
	}
	if len(remote) != 2 {
		t.Errorf("expected two remote chunks, got %d", len(remote))
	}
	for _, c := range remote {
		if len(c.Text) > 6000 {
			t.Errorf("chunk of %d bytes above remote ceiling", len(c.Text))
		}
	}
}

func TestPipeline_ChunkAll_CountsTruncated(t *testing.T) {
	c := chunker.New(chunker.WithSettings(domain.ChunkingSettings{
		Ceilings: map[domain.ProviderKind]map[domain.SourceType]int{
			domain.ProviderLocal: {domain.SourceIssue: 100},
		},
	}))
	p := NewPipeline(c)
	issue := domain.Document{
		SourceType: domain.SourceIssue,
		Identifier: "issue #1",
		Text:       strings.Repeat("word ", 100),
	}

	chunks, stats, err := p.ChunkAll(context.Background(), []domain.Document{issue}, domain.ProviderLocal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("expected the issue cap of one chunk, got %d", len(chunks))
	}
	if stats.Truncated != 1 {
		t.Errorf("expected one truncated document, got %d", stats.Truncated)
	}
}

func TestPipeline_ChunkAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewPipeline(nil).ChunkAll(ctx, []domain.Document{doc("a.md", "x")}, domain.ProviderLocal)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNormaliseText(t *testing.T) {
	out, err := NormaliseText{}.Process(doc("a.md", "one\r\n\r\ntwo\x00\rthree"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "one\n\ntwo\nthree" {
		t.Errorf("unexpected text %q", out.Text)
	}
}

// paragraphs builds a documentation file of size bytes in 100-byte
// paragraphs.
func paragraphs(id string, size int) domain.Document {
	para := strings.Repeat("x", 98) + "\n\n"
	return domain.Document{SourceType: domain.SourceDocumentation, Identifier: id, Text: strings.Repeat(para, size/100)}
}

// Three markdown files of 2KB, 50KB and 500 bytes under an 8KB ceiling.
func TestPipeline_ChunkAll_ThreeMarkdownFiles(t *testing.T) {
	c := chunker.New(chunker.WithSettings(domain.ChunkingSettings{
		Ceilings: map[domain.ProviderKind]map[domain.SourceType]int{
			domain.ProviderLocal: {domain.SourceDocumentation: 8000},
		},
	}))
	docs := []domain.Document{
		paragraphs("small.md", 2000),
		paragraphs("large.md", 50000),
		paragraphs("tiny.md", 500),
	}

	chunks, stats, err := NewPipeline(c).ChunkAll(context.Background(), docs, domain.ProviderLocal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Documents != 3 {
		t.Errorf("expected 3 documents, got %d", stats.Documents)
	}
	if stats.Chunks != len(chunks) {
		t.Errorf("stats chunks %d != %d", stats.Chunks, len(chunks))
	}
	if len(chunks) < 3 || len(chunks) > 3+7-1 {
		t.Errorf("expected between 3 and 9 chunks, got %d", len(chunks))
	}

	perDoc := map[string]int{}
	for _, ch := range chunks {
		perDoc[ch.DocumentID]++
	}
	if perDoc["small.md"] != 1 || perDoc["tiny.md"] != 1 {
		t.Errorf("small documents must stay whole: %v", perDoc)
	}
	if perDoc["large.md"] != 7 {
		t.Errorf("expected large.md in 7 chunks, got %d", perDoc["large.md"])
	}
}
