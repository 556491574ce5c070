package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sokinpui/tagapply/internal/catalog"
)

// Tag is an opening tag found in a text.
type Tag struct {
	Kind  catalog.Kind
	Name  string
	Start int
	End   int
	// Attrs is the raw attribute text between the tag name and '>'.
	Attrs string
}

// Match is an opening tag paired with the first closing tag of its kind
// that follows it.
type Match struct {
	Open      Tag
	BodyStart int
	BodyEnd   int
	End       int
}

// Tokenizer finds directive tags in text. Both the streaming renderer and
// the extractor go through the same Tokenizer so they agree on what a tag is.
type Tokenizer interface {
	// Openings returns every opening tag in textual order.
	Openings(text string) []Tag
	// Closings counts closing tags of kind k.
	Closings(text string, k catalog.Kind) int
	// Matches returns non-overlapping paired tags, scanning left to right.
	// Bodies are opaque: tags inside a matched body are not reported.
	Matches(text string) []Match
}

type regexTokenizer struct {
	open  *regexp.Regexp
	kinds map[string]catalog.Kind
}

// NewTokenizer returns a Tokenizer recognizing the given kinds, or every
// catalog kind when none are given.
func NewTokenizer(kinds ...catalog.Kind) Tokenizer {
	var tags []string
	if len(kinds) == 0 {
		tags = catalog.Tags()
	} else {
		for _, k := range kinds {
			tags = append(tags, catalog.Of(k).Tag)
		}
		sort.SliceStable(tags, func(i, j int) bool { return len(tags[i]) > len(tags[j]) })
	}

	t := &regexTokenizer{kinds: make(map[string]catalog.Kind, len(tags))}
	quoted := make([]string, len(tags))
	for i, tag := range tags {
		quoted[i] = regexp.QuoteMeta(tag)
		s, _ := catalog.Lookup(tag)
		t.kinds[tag] = s.Kind
	}
	// Quoted attribute values may contain '>'.
	t.open = regexp.MustCompile(`<(` + strings.Join(quoted, "|") + `)(\s(?:"[^"]*"|[^">])*)?>`)
	return t
}

var defaultTokenizer = NewTokenizer()

func (t *regexTokenizer) Openings(text string) []Tag {
	locs := t.open.FindAllStringSubmatchIndex(text, -1)
	tags := make([]Tag, 0, len(locs))
	for _, loc := range locs {
		tags = append(tags, t.tagAt(text, loc, 0))
	}
	return tags
}

func (t *regexTokenizer) Closings(text string, k catalog.Kind) int {
	return strings.Count(text, closingTag(k.String()))
}

func (t *regexTokenizer) Matches(text string) []Match {
	var matches []Match
	pos := 0
	for pos < len(text) {
		loc := t.open.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		open := t.tagAt(text, loc, pos)
		closer := closingTag(open.Name)
		idx := strings.Index(text[open.End:], closer)
		if idx < 0 {
			// No closing tag: keep looking for openings after this one.
			pos = open.Start + 1
			continue
		}
		bodyEnd := open.End + idx
		m := Match{
			Open:      open,
			BodyStart: open.End,
			BodyEnd:   bodyEnd,
			End:       bodyEnd + len(closer),
		}
		matches = append(matches, m)
		pos = m.End
	}
	return matches
}

func (t *regexTokenizer) tagAt(text string, loc []int, offset int) Tag {
	name := text[offset+loc[2] : offset+loc[3]]
	tag := Tag{
		Kind:  t.kinds[name],
		Name:  name,
		Start: offset + loc[0],
		End:   offset + loc[1],
	}
	if loc[4] >= 0 {
		tag.Attrs = text[offset+loc[4] : offset+loc[5]]
	}
	return tag
}

func closingTag(name string) string {
	return "</" + name + ">"
}
