package postprocessors

import (
	"path"
	"strings"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// MetaTitle is the metadata key holding a document's display title.
const MetaTitle = "title"

// MarkdownTitle sets the title of documentation files from their first H1
// heading, or from the file name when there is none. Documents of other
// sources and documents that already carry a title pass through unchanged.
type MarkdownTitle struct{}

// Name returns the processor name.
func (MarkdownTitle) Name() string {
	return "markdown-title"
}

// Process returns the document with a title in its metadata.
func (MarkdownTitle) Process(doc domain.Document) (domain.Document, error) {
	if doc.SourceType != domain.SourceDocumentation {
		return doc, nil
	}
	if title, _ := doc.Metadata[MetaTitle].(string); title != "" {
		return doc, nil
	}

	// Fetchers may share metadata maps between documents.
	meta := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[MetaTitle] = markdownTitle(doc.Text, doc.Identifier)
	doc.Metadata = meta
	return doc, nil
}

// markdownTitle returns the first "# " heading outside a code fence, or a
// title derived from the file name.
func markdownTitle(text, filePath string) string {
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(strings.Trim(line[2:], "#")); title != "" {
				return title
			}
		}
	}

	name := path.Base(filePath)
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}
