package tagapply

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/internal/fs"
	"github.com/sokinpui/tagapply/internal/parser"
	"github.com/sokinpui/tagapply/internal/patcher"
	"github.com/sokinpui/tagapply/internal/source"
	"github.com/sokinpui/tagapply/internal/ui"
	"github.com/sokinpui/tagapply/model"
)

// dryRun prints what applying the response would do without touching the
// workspace.
func (a *App) dryRun() (model.Summary, error) {
	content, err := a.sourceProvider.GetContent()
	if errors.Is(err, source.ErrEmpty) {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}

	resolver, err := fs.NewPathResolver(a.ws.Root)
	if err != nil {
		return model.Summary{}, err
	}
	batch := parser.Extract(content)
	n := Preview(a.out, resolver, batch)

	ui.PrintWarnings(batch.Warnings)
	for _, b := range parser.StrayCodeBlocks(parser.Segments(content)) {
		lang := b.Lang
		if lang == "" {
			lang = "plain"
		}
		ui.Warning("Line %d: a %s code block outside any directive will not be applied.", b.Line, lang)
	}
	return model.Summary{Message: fmt.Sprintf("Dry run: %d directive(s), nothing applied.", n)}, nil
}

// Preview writes one line per directive of batch to w, followed by a diff
// for file writes and the corrected hunks for edits. It returns the
// number of directives.
func Preview(w io.Writer, resolver *fs.PathResolver, batch *Batch) int {
	ds := batch.All()
	for _, d := range ds {
		fmt.Fprintf(w, "%s%s\n", d.Kind, formatAttrs(d.Attributes))

		schema, _ := catalog.Lookup(d.Kind)
		switch schema.Kind {
		case catalog.WriteFile:
			previewWrite(w, resolver, d)
		case catalog.Edit:
			previewEdit(w, resolver, d)
		case catalog.ExecuteSQL:
			fmt.Fprintln(w, indent(d.Body))
		}
	}
	return len(ds)
}

func formatAttrs(attrs map[string]string) string {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		fmt.Fprintf(&b, " %s=%q", k, attrs[k])
	}
	return b.String()
}

func readExisting(resolver *fs.PathResolver, rel string) (string, error) {
	abs, err := resolver.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func previewWrite(w io.Writer, resolver *fs.PathResolver, d model.Directive) {
	path := d.Attr("path")
	old, err := readExisting(resolver, path)
	if err != nil {
		fmt.Fprintf(w, "  ! %v\n", err)
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(d.Body),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		fmt.Fprintf(w, "  ! %v\n", err)
		return
	}
	if diff == "" {
		fmt.Fprintln(w, "  (unchanged)")
		return
	}
	fmt.Fprint(w, diff)
}

func previewEdit(w io.Writer, resolver *fs.PathResolver, d model.Directive) {
	path := d.Attr("path")
	old, err := readExisting(resolver, path)
	if err != nil {
		fmt.Fprintf(w, "  ! %v\n", err)
		return
	}
	corrected, err := patcher.Correct(old, d.Body, path)
	if err != nil {
		fmt.Fprintf(w, "  ! %v\n", err)
		return
	}
	fmt.Fprint(w, corrected)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
