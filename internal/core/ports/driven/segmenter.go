package driven

import "context"

// CodeSegment is one function, method or type extracted from a source file.
type CodeSegment struct {
	Name      string
	Kind      string
	StartLine int
	EndLine   int
	Text      string
}

// CodeSegmenter splits source files into top-level declarations.
type CodeSegmenter interface {
	// Supports reports whether a language can be segmented.
	Supports(language string) bool

	// Segment returns the declarations of a file in source order. An empty
	// result means the caller should ingest the file whole.
	Segment(ctx context.Context, language string, src []byte) ([]CodeSegment, error)
}
