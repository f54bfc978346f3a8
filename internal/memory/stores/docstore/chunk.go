package docstore

import (
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ChunkDocument splits content into non-empty chunks of roughly
// chunkSize bytes, breaking on Markdown block boundaries (headings,
// paragraphs, list items, code blocks) rather than mid-word, so a
// chunk never slices through a sentence unless a single block alone
// exceeds chunkSize. Each chunk records its byte offset in content.
func ChunkDocument(docID, content string, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = 2048
	}
	src := []byte(content)
	blocks := blockSegments(src)

	var chunks []Chunk
	var buf strings.Builder
	bufStart := -1

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			buf.Reset()
			bufStart = -1
			return
		}
		id, _ := uuid.NewV7()
		chunks = append(chunks, Chunk{ID: id.String(), DocID: docID, Text: text, Position: bufStart})
		buf.Reset()
		bufStart = -1
	}

	for _, seg := range blocks {
		blockText := string(src[seg.Start:seg.Stop])
		if strings.TrimSpace(blockText) == "" {
			continue
		}
		if bufStart < 0 {
			bufStart = seg.Start
		}
		if buf.Len() > 0 && buf.Len()+len(blockText) > chunkSize {
			flush()
			bufStart = seg.Start
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(blockText)

		// A single oversized block still gets its own chunk rather than
		// being held hostage waiting for a flush trigger that may never
		// come for the remainder of the document.
		if buf.Len() >= chunkSize {
			flush()
		}
	}
	flush()

	return chunks
}

type byteSpan struct {
	Start, Stop int
}

// blockSegments walks the Markdown AST's top-level block children and
// returns their source byte ranges in document order.
func blockSegments(src []byte) []byteSpan {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	var spans []byteSpan
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if lines := blockLines(n); lines != nil && lines.Len() > 0 {
			first := lines.At(0)
			last := lines.At(lines.Len() - 1)
			spans = append(spans, byteSpan{Start: first.Start, Stop: last.Stop})
			continue
		}
		// Nodes without direct line segments (e.g. a blank line node)
		// contribute nothing; fall back to scanning descendants for any
		// segment so headings/lists with nested content aren't dropped.
		if span, ok := widestDescendantSpan(n); ok {
			spans = append(spans, span)
		}
	}
	return spans
}

func blockLines(n ast.Node) *text.Segments {
	switch v := n.(type) {
	case *ast.Paragraph:
		return v.Lines()
	case *ast.Heading:
		return v.Lines()
	case *ast.CodeBlock:
		return v.Lines()
	case *ast.FencedCodeBlock:
		return v.Lines()
	case *ast.TextBlock:
		return v.Lines()
	default:
		return nil
	}
}

func widestDescendantSpan(n ast.Node) (byteSpan, bool) {
	var start, stop = -1, -1
	ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		lines := blockLines(child)
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		first := lines.At(0)
		last := lines.At(lines.Len() - 1)
		if start < 0 || first.Start < start {
			start = first.Start
		}
		if last.Stop > stop {
			stop = last.Stop
		}
		return ast.WalkContinue, nil
	})
	if start < 0 {
		return byteSpan{}, false
	}
	return byteSpan{Start: start, Stop: stop}, true
}
