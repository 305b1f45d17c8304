// Package treesitter segments source files into top-level declarations
// using tree-sitter grammars.
package treesitter

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/logger"
)

// Verify interface compliance.
var _ driven.CodeSegmenter = (*Segmenter)(nil)

// grammar describes which top-level nodes become segments.
type grammar struct {
	language func() *sitter.Language
	kinds    map[string]string
}

var grammars = map[string]grammar{
	"go": {
		language: golang.GetLanguage,
		kinds: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
		},
	},
	"python": {
		language: python.GetLanguage,
		kinds: map[string]string{
			"function_definition":  "function",
			"class_definition":     "class",
			"decorated_definition": "decorated",
		},
	},
	"javascript": {
		language: javascript.GetLanguage,
		kinds: map[string]string{
			"function_declaration":           "function",
			"generator_function_declaration": "function",
			"class_declaration":              "class",
			"lexical_declaration":            "variable",
		},
	},
	"typescript": {
		language: typescript.GetLanguage,
		kinds: map[string]string{
			"function_declaration":           "function",
			"generator_function_declaration": "function",
			"class_declaration":              "class",
			"abstract_class_declaration":     "class",
			"interface_declaration":          "interface",
			"type_alias_declaration":         "type",
			"enum_declaration":               "enum",
			"lexical_declaration":            "variable",
		},
	},
}

// Segmenter extracts declarations. It is safe for concurrent use; each call
// gets its own parser.
type Segmenter struct {
	minLines int
}

// Option configures the segmenter.
type Option func(*Segmenter)

// WithMinLines drops declarations shorter than n lines.
func WithMinLines(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.minLines = n
		}
	}
}

// New creates a segmenter.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{minLines: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supports reports whether a language has a grammar.
func (s *Segmenter) Supports(language string) bool {
	_, ok := grammars[normalise(language)]
	return ok
}

// Segment returns the top-level declarations of src in source order.
func (s *Segmenter) Segment(ctx context.Context, language string, src []byte) ([]driven.CodeSegment, error) {
	g, ok := grammars[normalise(language)]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
	if len(src) == 0 {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		logger.Debug("tree-sitter: %s source has syntax errors, segmenting what parsed", language)
	}

	var segments []driven.CodeSegment
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		decl := node
		if node.Type() == "export_statement" {
			if inner := node.ChildByFieldName("declaration"); inner != nil {
				decl = inner
			}
		}

		kind, ok := g.kinds[decl.Type()]
		if !ok {
			continue
		}
		if decl.Type() == "lexical_declaration" && !declaresFunction(decl) {
			continue
		}

		start := int(node.StartPoint().Row) + 1
		end := int(node.EndPoint().Row) + 1
		if end-start+1 < s.minLines {
			continue
		}

		segments = append(segments, driven.CodeSegment{
			Name:      declName(decl, src),
			Kind:      kind,
			StartLine: start,
			EndLine:   end,
			Text:      node.Content(src),
		})
	}
	return segments, nil
}

// declName finds the identifier of a declaration.
func declName(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			return declName(def, src)
		}
	case "type_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if spec := node.NamedChild(i); spec.Type() == "type_spec" {
				return declName(spec, src)
			}
		}
	case "lexical_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if d := node.NamedChild(i); d.Type() == "variable_declarator" {
				return declName(d, src)
			}
		}
	}
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	return ""
}

// declaresFunction reports whether a const/let binds an arrow function or
// function expression.
func declaresFunction(node *sitter.Node) bool {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		d := node.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		if v := d.ChildByFieldName("value"); v != nil {
			switch v.Type() {
			case "arrow_function", "function", "function_expression":
				return true
			}
		}
	}
	return false
}

func normalise(language string) string {
	switch l := strings.ToLower(language); l {
	case "golang":
		return "go"
	case "js", "jsx":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	default:
		return l
	}
}
