package parser

import (
	"sort"
	"strings"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/model"
)

// Parser turns response text into segments and directive batches.
type Parser struct {
	tok Tokenizer
}

// New creates a Parser backed by tok, or by the default tokenizer if nil.
func New(tok Tokenizer) *Parser {
	if tok == nil {
		tok = defaultTokenizer
	}
	return &Parser{tok: tok}
}

var defaultParser = New(nil)

// Segments splits a possibly-partial response into prose and directive
// segments. See (*Parser).Segments.
func Segments(text string) []model.Segment {
	return defaultParser.Segments(text)
}

// Segments splits a possibly-partial response into prose and directive
// segments. Openings without a matching closing tag are treated as closed
// at the end of the text and reported with Complete false. The result
// depends only on text.
func (p *Parser) Segments(text string) []model.Segment {
	if text == "" {
		return nil
	}

	byKind := make(map[catalog.Kind][]Tag)
	for _, tag := range p.tok.Openings(text) {
		byKind[tag.Kind] = append(byKind[tag.Kind], tag)
	}

	incomplete := make(map[int]bool)
	var unclosed []Tag
	for kind, tags := range byKind {
		missing := len(tags) - p.tok.Closings(text, kind)
		if missing <= 0 {
			continue
		}
		if missing > len(tags) {
			missing = len(tags)
		}
		for _, tag := range tags[len(tags)-missing:] {
			incomplete[tag.Start] = true
			unclosed = append(unclosed, tag)
		}
	}

	// Close the most recent opening first.
	sort.Slice(unclosed, func(i, j int) bool { return unclosed[i].Start > unclosed[j].Start })
	var b strings.Builder
	b.WriteString(text)
	for _, tag := range unclosed {
		b.WriteString(closingTag(tag.Name))
	}
	working := b.String()

	n := len(text)
	var segments []model.Segment
	cursor := 0
	for _, m := range p.tok.Matches(working) {
		if m.Open.Start >= n {
			break
		}
		if m.Open.Start > cursor {
			segments = append(segments, model.Segment{Prose: text[cursor:m.Open.Start]})
		}
		end := min(m.End, n)
		body := ""
		if m.BodyStart < n {
			body = text[m.BodyStart:min(m.BodyEnd, n)]
		}
		segments = append(segments, model.Segment{Directive: &model.Directive{
			Kind:       m.Open.Name,
			Attributes: ParseAttributes(m.Open.Attrs),
			Body:       body,
			Complete:   !incomplete[m.Open.Start] && m.End <= n,
			Offset:     m.Open.Start,
			Raw:        text[m.Open.Start:end],
		}})
		cursor = end
	}
	if cursor < n {
		segments = append(segments, model.Segment{Prose: text[cursor:]})
	}
	return segments
}

// DisplayState describes how a renderer should show a directive.
type DisplayState string

const (
	StateFinished DisplayState = "finished"
	StatePending  DisplayState = "pending"
	StateAborted  DisplayState = "aborted"
)

// StateOf returns the display state of d. An incomplete directive is
// pending while the stream is live and aborted once it has ended.
func StateOf(d model.Directive, streaming bool) DisplayState {
	switch {
	case d.Complete:
		return StateFinished
	case streaming:
		return StatePending
	default:
		return StateAborted
	}
}
