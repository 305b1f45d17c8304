// Package postprocessors turns fetched documents into embeddable chunks.
package postprocessors

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/postprocessors/chunker"
)

// Ensure Pipeline implements the interface.
var _ driven.DocumentChunker = (*Pipeline)(nil)

// DocumentProcessor rewrites a document before it is chunked.
type DocumentProcessor interface {
	Name() string
	Process(doc domain.Document) (domain.Document, error)
}

// Pipeline runs document processors in order and then chunks the result.
// It implements the DocumentChunker interface.
type Pipeline struct {
	chunker    *chunker.Chunker
	processors []DocumentProcessor
}

// NewPipeline creates a pipeline around a chunker.
// Processors are executed in the order provided.
func NewPipeline(c *chunker.Chunker, processors ...DocumentProcessor) *Pipeline {
	if c == nil {
		c = chunker.New()
	}
	return &Pipeline{
		chunker:    c,
		processors: processors,
	}
}

// NewDefaultPipeline creates the pipeline used for ingestion: newline
// normalisation and documentation titles, then the chunker configured from
// settings.
func NewDefaultPipeline(settings domain.ChunkingSettings) *Pipeline {
	return NewPipeline(chunker.New(chunker.WithSettings(settings)), NormaliseText{}, MarkdownTitle{})
}

// ChunkAll processes and chunks every document, checking ctx between
// documents.
func (p *Pipeline) ChunkAll(
	ctx context.Context, docs []domain.Document, kind domain.ProviderKind,
) ([]domain.Chunk, driven.ChunkStats, error) {
	var (
		all   []domain.Chunk
		stats driven.ChunkStats
	)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		for _, processor := range p.processors {
			var err error
			doc, err = processor.Process(doc)
			if err != nil {
				return nil, stats, fmt.Errorf("processor %s: %w", processor.Name(), err)
			}
		}

		chunks, err := p.chunker.Chunk(doc, p.chunker.PolicyFor(doc.SourceType, kind))
		if err != nil {
			return nil, stats, err
		}
		if len(chunks) == 0 {
			continue
		}
		stats.Documents++
		stats.Chunks += len(chunks)
		if truncated, _ := chunks[0].Metadata[chunker.MetaTruncated].(bool); truncated {
			stats.Truncated++
		}
		all = append(all, chunks...)
	}
	return all, stats, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor DocumentProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// NormaliseText converts CRLF line endings to LF and drops NUL bytes, so
// paragraph boundaries split the same way on every platform.
type NormaliseText struct{}

// Name returns the processor name.
func (NormaliseText) Name() string {
	return "normalise"
}

// Process returns the document with normalised text.
func (NormaliseText) Process(doc domain.Document) (domain.Document, error) {
	if strings.ContainsAny(doc.Text, "\r\x00") {
		doc.Text = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "").Replace(doc.Text)
	}
	return doc, nil
}
