package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/model"
)

// Batch holds the directives extracted from a finalized response, grouped
// by kind in document order.
type Batch struct {
	Directives  map[catalog.Kind][]model.Directive
	ChatSummary string
	// Warnings lists directives that were dropped as malformed.
	Warnings []model.Failure
}

// Of returns the directives of kind k.
func (b *Batch) Of(k catalog.Kind) []model.Directive {
	return b.Directives[k]
}

// Len counts all extracted directives.
func (b *Batch) Len() int {
	n := 0
	for _, ds := range b.Directives {
		n += len(ds)
	}
	return n
}

// Mutating reports whether the batch holds any directive with side effects.
func (b *Batch) Mutating() bool {
	for k, ds := range b.Directives {
		if len(ds) > 0 && catalog.Of(k).Mutating() {
			return true
		}
	}
	return false
}

// InPhase returns the directives of every kind in phase p, in document order.
func (b *Batch) InPhase(p catalog.Phase) []model.Directive {
	var out []model.Directive
	for _, k := range catalog.ByPhase(p) {
		out = append(out, b.Directives[k]...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// All returns every directive in document order.
func (b *Batch) All() []model.Directive {
	var out []model.Directive
	for _, ds := range b.Directives {
		out = append(out, ds...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Extract parses a finalized response. See (*Parser).Extract.
func Extract(text string) *Batch {
	return defaultParser.Extract(text)
}

// Extract parses a finalized response into validated directives.
// Directives missing a required attribute and openings that never close
// are reported as malformed warnings and left out of the batch.
func (p *Parser) Extract(text string) *Batch {
	batch := &Batch{Directives: make(map[catalog.Kind][]model.Directive)}
	matches := p.tok.Matches(text)

	covered := func(pos int) bool {
		for _, m := range matches {
			if pos >= m.Open.Start && pos < m.End {
				return true
			}
		}
		return false
	}
	for _, tag := range p.tok.Openings(text) {
		if covered(tag.Start) {
			continue
		}
		batch.Warnings = append(batch.Warnings, model.Failure{
			Kind:    model.FailureMalformed,
			Message: fmt.Sprintf("<%s> at offset %d has no closing tag", tag.Name, tag.Start),
		})
	}

	summarySeen := false
	for _, m := range matches {
		schema, _ := catalog.Lookup(m.Open.Name)
		d := model.Directive{
			Kind:       schema.Tag,
			Attributes: ParseAttributes(m.Open.Attrs),
			Body:       text[m.BodyStart:m.BodyEnd],
			Complete:   true,
			Offset:     m.Open.Start,
			Raw:        text[m.Open.Start:m.End],
		}

		if schema.Kind == catalog.ChatSummary {
			if !summarySeen {
				batch.ChatSummary = strings.TrimSpace(d.Body)
				summarySeen = true
			}
			continue
		}

		if failure := normalize(schema, &d); failure != nil {
			batch.Warnings = append(batch.Warnings, *failure)
			continue
		}
		batch.Directives[schema.Kind] = append(batch.Directives[schema.Kind], d)
	}
	return batch
}

func normalize(schema catalog.Schema, d *model.Directive) *model.Failure {
	if missing := schema.MissingAttrs(d.Attributes); len(missing) > 0 {
		return malformed(d, fmt.Sprintf("<%s> is missing required attribute(s): %s", schema.Tag, strings.Join(missing, ", ")))
	}
	for _, name := range schema.PathAttrs {
		if v, ok := d.Attributes[name]; ok {
			d.Attributes[name] = NormalizePath(v)
		}
	}

	switch schema.Kind {
	case catalog.WriteFile, catalog.Edit:
		d.Body = CleanBody(d.Body)
	case catalog.ExecuteSQL:
		d.Body = CleanBody(d.Body)
		if strings.TrimSpace(d.Body) == "" {
			return malformed(d, "<execute-sql> has an empty query")
		}
	case catalog.AddDependency:
		pkgs := strings.Fields(d.Attributes["packages"])
		if len(pkgs) == 0 {
			return malformed(d, "<add-dependency> names no packages")
		}
		d.Attributes["packages"] = strings.Join(pkgs, " ")
	case catalog.ReadFiles:
		var paths []string
		for _, p := range strings.Split(d.Attributes["paths"], ",") {
			if p = NormalizePath(p); p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			return malformed(d, "<read-files> names no paths")
		}
		d.Attributes["paths"] = strings.Join(paths, ",")
	}
	return nil
}

func malformed(d *model.Directive, msg string) *model.Failure {
	return &model.Failure{Kind: model.FailureMalformed, Message: msg, Directive: d}
}
