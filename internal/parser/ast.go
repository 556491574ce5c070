package parser

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sokinpui/tagapply/model"
)

// CodeBlock is a fenced code block found in the prose of a response.
type CodeBlock struct {
	// Hint is the paragraph right above the block, if any.
	Hint string
	Lang string
	// Content is the text between the fences.
	Content string
	// Line is the 1-based line of the response holding the first content
	// line, or the opening fence for an empty block.
	Line int
}

var markdown = goldmark.New()

// StrayCodeBlocks returns the fenced code blocks that sit in prose,
// outside any directive. They are never applied; a host may point them
// out so the author can wrap them in a write-file directive.
func StrayCodeBlocks(segments []model.Segment) []CodeBlock {
	var blocks []CodeBlock
	line := 1
	for _, s := range segments {
		if s.IsProse() {
			blocks = append(blocks, proseCodeBlocks([]byte(s.Prose), line)...)
		}
		line += strings.Count(s.Source(), "\n")
	}
	return blocks
}

// proseCodeBlocks parses one prose segment that starts on firstLine.
func proseCodeBlocks(source []byte, firstLine int) []CodeBlock {
	var blocks []CodeBlock
	root := markdown.Parser().Parse(text.NewReader(source))

	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}

		block := CodeBlock{Lang: string(fenced.Language(source))}
		start := -1
		lines := fenced.Lines()
		var content strings.Builder
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if start < 0 {
				start = seg.Start
			}
			content.Write(seg.Value(source))
		}
		block.Content = content.String()
		if start < 0 && fenced.Info != nil {
			start = fenced.Info.Segment.Start
		}
		if start >= 0 {
			block.Line = firstLine + strings.Count(string(source[:start]), "\n")
		}

		if p, ok := fenced.PreviousSibling().(*ast.Paragraph); ok {
			block.Hint = strings.TrimSpace(string(p.Lines().Value(source)))
		}
		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	})
	return blocks
}
