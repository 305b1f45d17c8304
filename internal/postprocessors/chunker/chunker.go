// Package chunker splits documents into the fewest chunks that fit a
// provider- and source-dependent size ceiling.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// MinCeiling is the smallest accepted ceiling in bytes.
const MinCeiling = 64

// Metadata keys added to every chunk.
const (
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaTruncated   = "truncated"
	MetaSourceType  = "source_type"
	MetaDocumentID  = "document_id"
)

// separators are tried in order, coarsest first.
var separators = []string{"\n\n", "\n", ". ", " "}

// Policy bounds the chunks of one document.
type Policy struct {
	// Ceiling is the maximum chunk size in bytes.
	Ceiling int

	// MaxChunks caps the chunks per document. 0 means no cap.
	MaxChunks int
}

// Chunker holds the policy table.
type Chunker struct {
	settings domain.ChunkingSettings
}

// Option configures the chunker.
type Option func(*Chunker)

// WithSettings replaces the default policy table. Missing entries fall
// back to the defaults.
func WithSettings(s domain.ChunkingSettings) Option {
	return func(c *Chunker) {
		for kind, bySource := range s.Ceilings {
			for source, ceiling := range bySource {
				if ceiling > 0 {
					if c.settings.Ceilings[kind] == nil {
						c.settings.Ceilings[kind] = make(map[domain.SourceType]int)
					}
					c.settings.Ceilings[kind][source] = ceiling
				}
			}
		}
		for source, limit := range s.MaxChunks {
			if limit >= 0 {
				c.settings.MaxChunks[source] = limit
			}
		}
	}
}

// New creates a chunker with the default policy table.
func New(opts ...Option) *Chunker {
	c := &Chunker{settings: domain.DefaultChunkingSettings()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PolicyFor returns the policy for a source type and provider kind.
func (c *Chunker) PolicyFor(source domain.SourceType, kind domain.ProviderKind) Policy {
	ceiling := c.settings.Ceiling(kind, source)
	if ceiling <= 0 {
		ceiling = domain.DefaultChunkingSettings().Ceiling(domain.ProviderRemote, source)
	}
	if ceiling < MinCeiling {
		ceiling = MinCeiling
	}
	return Policy{Ceiling: ceiling, MaxChunks: c.settings.MaxChunks[source]}
}

// Chunk splits one document. A document that fits under the ceiling is
// returned as a single chunk. Larger documents are split at paragraph,
// line, sentence and word boundaries, in that order of preference, and
// packed greedily. Content past the chunk cap is dropped and the chunks
// are marked truncated.
func (c *Chunker) Chunk(doc domain.Document, policy Policy) ([]domain.Chunk, error) {
	if policy.Ceiling < MinCeiling {
		return nil, fmt.Errorf("%w: chunk ceiling %d below %d", domain.ErrInvalidInput, policy.Ceiling, MinCeiling)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	texts, truncated := pack(split(doc.Text, policy.Ceiling, 0), policy.Ceiling, policy.MaxChunks)

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		meta := make(map[string]any, len(doc.Metadata)+5)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[MetaChunkIndex] = i
		meta[MetaTotalChunks] = len(texts)
		meta[MetaSourceType] = doc.SourceType.String()
		meta[MetaDocumentID] = doc.Identifier
		if truncated {
			meta[MetaTruncated] = true
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: doc.Identifier,
			Text:       text,
			Index:      i,
			Total:      len(texts),
			Metadata:   meta,
		})
	}

	if err := check(chunks, policy); err != nil {
		return nil, fmt.Errorf("chunk %s: %w", doc.Identifier, err)
	}
	return chunks, nil
}

// split breaks text into pieces no larger than ceiling, using the coarsest
// separator that works. Separators stay attached to the preceding piece, so
// concatenating the pieces gives back the text.
func split(text string, ceiling, level int) []string {
	if len(text) <= ceiling {
		return []string{text}
	}
	if level >= len(separators) {
		return hardCut(text, ceiling)
	}

	parts := strings.SplitAfter(text, separators[level])
	if len(parts) == 1 {
		return split(text, ceiling, level+1)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, split(p, ceiling, level+1)...)
	}
	return out
}

// hardCut cuts text into ceiling-sized pieces on rune boundaries.
func hardCut(text string, ceiling int) []string {
	var out []string
	for len(text) > ceiling {
		cut := ceiling
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(text)
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// pack joins consecutive pieces while they fit. Joining in order this way
// yields the fewest chunks for the given pieces. It reports whether pieces
// were dropped because of maxChunks.
func pack(pieces []string, ceiling, maxChunks int) ([]string, bool) {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			out = append(out, cur.String())
		}
		cur.Reset()
	}

	for i, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > ceiling {
			flush()
			if maxChunks > 0 && len(out) == maxChunks {
				return out, hasContent(pieces[i:])
			}
		}
		cur.WriteString(p)
	}
	flush()
	return out, false
}

func hasContent(pieces []string) bool {
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func check(chunks []domain.Chunk, policy Policy) error {
	if policy.MaxChunks > 0 && len(chunks) > policy.MaxChunks {
		return fmt.Errorf("%w: %d chunks, cap %d", domain.ErrChunkBudgetExceeded, len(chunks), policy.MaxChunks)
	}
	for _, ch := range chunks {
		if len(ch.Text) > policy.Ceiling {
			return fmt.Errorf("%w: chunk %d is %d bytes, ceiling %d", domain.ErrChunkBudgetExceeded, ch.Index, len(ch.Text), policy.Ceiling)
		}
	}
	return nil
}
