package apply

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/internal/config"
	"github.com/sokinpui/tagapply/internal/deps"
	"github.com/sokinpui/tagapply/internal/vcs"
	"github.com/sokinpui/tagapply/model"
)

const (
	maxScanFileSize = 1 << 20
	maxMatches      = 200
)

var skipDirs = map[string]bool{
	".git":         true,
	config.Dir:     true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
}

type queryResult struct {
	key   string
	value string
	err   error
	msg   string
}

// queries runs read-only directives concurrently and merges their results
// in document order.
func (t *txn) queries(ds []model.Directive) {
	if len(ds) == 0 {
		return
	}
	results := make([]queryResult, len(ds))

	g, ctx := errgroup.WithContext(t.ctx)
	g.SetLimit(t.e.opts.QueryConcurrency)
	for i, d := range ds {
		g.Go(func() error {
			results[i] = t.query(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		if r.err != nil {
			t.fail(ds[i], r.msg, r.err)
			continue
		}
		t.res.QueryResults[r.key] = r.value
	}
}

func (t *txn) query(ctx context.Context, d model.Directive) queryResult {
	schema, _ := catalog.Lookup(d.Kind)
	switch schema.Kind {
	case catalog.ReadFile:
		key := "read-file:" + d.Attr("path")
		content, err := t.readFile(d.Attr("path"))
		return queryResult{key: key, value: content, err: err, msg: "failed to read file " + d.Attr("path")}

	case catalog.ReadFiles:
		var b strings.Builder
		var errs []error
		for _, p := range strings.Split(d.Attr("paths"), ",") {
			content, err := t.readFile(p)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(&b, "=== %s ===\n%s\n", p, content)
		}
		return queryResult{key: "read-files:" + d.Attr("paths"), value: b.String(), err: errors.Join(errs...), msg: "failed to read files " + d.Attr("paths")}

	case catalog.ListFiles:
		dir := d.Attr("dir")
		if dir == "" {
			dir = "."
		}
		out, err := t.listFiles(dir)
		return queryResult{key: "list-files:" + dir, value: out, err: err, msg: "failed to list files in " + dir}

	case catalog.SearchFiles:
		out, err := t.searchFiles(d.Attr("pattern"))
		return queryResult{key: "search-files:" + d.Attr("pattern"), value: out, err: err, msg: "failed to search files " + d.Attr("pattern")}

	case catalog.SearchFileContent:
		out, err := t.searchContent(d.Attr("path"), d.Attr("query"))
		return queryResult{key: "search-file-content:" + d.Attr("path") + ":" + d.Attr("query"), value: out, err: err, msg: "failed to search file content " + d.Attr("path")}

	case catalog.GitStatus, catalog.GitDiff, catalog.GitLog:
		return t.gitQuery(ctx, schema.Kind, d)

	case catalog.ListDeps:
		list, err := deps.List(t.resolver.Root())
		return queryResult{key: "list-deps", value: strings.Join(list, "\n"), err: err, msg: "failed to list dependencies"}

	case catalog.FindRefs:
		sym := d.Attr("symbol")
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(sym) + `\b`)
		out, err := t.grepTree(re)
		return queryResult{key: "find-refs:" + sym, value: out, err: err, msg: "failed to find references to " + sym}

	case catalog.FindDef:
		sym := d.Attr("symbol")
		out, err := t.grepTree(definitionPattern(sym))
		return queryResult{key: "find-def:" + sym, value: out, err: err, msg: "failed to find definition of " + sym}

	case catalog.ShowExports:
		out, err := t.scanFile(d.Attr("path"), isExport)
		return queryResult{key: "show-exports:" + d.Attr("path"), value: out, err: err, msg: "failed to show exports of " + d.Attr("path")}

	case catalog.ShowImports:
		out, err := t.scanFile(d.Attr("path"), importMatcher())
		return queryResult{key: "show-imports:" + d.Attr("path"), value: out, err: err, msg: "failed to show imports of " + d.Attr("path")}
	}
	return queryResult{err: fmt.Errorf("unsupported query %s", d.Kind), msg: "unsupported query"}
}

func (t *txn) readFile(rel string) (string, error) {
	abs, _, err := t.resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *txn) listFiles(dir string) (string, error) {
	abs, err := t.resolver.Resolve(dir)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return strings.Join(names, "\n"), nil
}

// walk visits regular files under the workspace, skipping dependency and
// metadata directories.
func (t *txn) walk(fn func(abs, rel string) error) error {
	root := t.resolver.Root()
	return filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(path, t.resolver.Rel(path))
	})
}

func (t *txn) searchFiles(pattern string) (string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return "", err
	}
	var found []string
	err := t.walk(func(_, rel string) error {
		matchRel, _ := filepath.Match(pattern, rel)
		matchBase, _ := filepath.Match(pattern, filepath.Base(rel))
		if matchRel || matchBase {
			found = append(found, rel)
		}
		return nil
	})
	sort.Strings(found)
	return strings.Join(found, "\n"), err
}

func (t *txn) searchContent(rel, query string) (string, error) {
	content, err := t.readFile(rel)
	if err != nil {
		return "", err
	}
	var out []string
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, query) {
			out = append(out, strconv.Itoa(i+1)+": "+line)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (t *txn) grepTree(re *regexp.Regexp) (string, error) {
	var out []string
	errLimit := errors.New("limit reached")
	err := t.walk(func(abs, rel string) error {
		info, err := os.Stat(abs)
		if err != nil || info.Size() > maxScanFileSize {
			return nil
		}
		data, err := os.ReadFile(abs)
		if err != nil || bytes.IndexByte(data, 0) >= 0 {
			return nil
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), maxScanFileSize)
		for n := 1; scanner.Scan(); n++ {
			if re.MatchString(scanner.Text()) {
				out = append(out, fmt.Sprintf("%s:%d: %s", rel, n, strings.TrimSpace(scanner.Text())))
				if len(out) >= maxMatches {
					return errLimit
				}
			}
		}
		return nil
	})
	if errors.Is(err, errLimit) {
		err = nil
	}
	return strings.Join(out, "\n"), err
}

func definitionPattern(symbol string) *regexp.Regexp {
	return regexp.MustCompile(`\b(func|function|class|interface|type|const|let|var|def|enum|struct)\s+(\([^)]*\)\s*)?` +
		regexp.QuoteMeta(symbol) + `\b`)
}

var (
	jsExport = regexp.MustCompile(`^\s*export\s`)
	goExport = regexp.MustCompile(`^(func|type|var|const)\s+(\([^)]*\)\s*)?[A-Z]`)
)

func isExport(line string) bool {
	return jsExport.MatchString(line) || goExport.MatchString(line)
}

// importMatcher returns a stateful matcher that also recognizes the lines
// of a Go import block.
func importMatcher() func(string) bool {
	single := regexp.MustCompile(`^\s*(import\b|from\s+\S+\s+import\b)|require\(`)
	inBlock := false
	return func(line string) bool {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			if trimmed == ")" {
				inBlock = false
				return false
			}
			return trimmed != ""
		case trimmed == "import (":
			inBlock = true
			return false
		}
		return single.MatchString(line)
	}
}

func (t *txn) scanFile(rel string, match func(string) bool) (string, error) {
	content, err := t.readFile(rel)
	if err != nil {
		return "", err
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if match(line) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return strings.Join(out, "\n"), nil
}

func (t *txn) gitQuery(ctx context.Context, kind catalog.Kind, d model.Directive) queryResult {
	inspector, ok := t.ws.VCS.(vcs.Inspector)
	if !ok {
		return queryResult{err: errors.New("version control backend does not support queries"), msg: "failed to run " + d.Kind}
	}
	switch kind {
	case catalog.GitStatus:
		out, err := inspector.StatusShort(ctx)
		return queryResult{key: "git-status", value: out, err: err, msg: "failed to get git status"}
	case catalog.GitDiff:
		key := "git-diff"
		path := d.Attr("path")
		if path != "" {
			if _, clean, err := t.resolve(path); err != nil {
				return queryResult{err: err, msg: "failed to get git diff: " + path}
			} else {
				path = clean
			}
			key += ":" + path
		}
		out, err := inspector.Diff(ctx, path)
		return queryResult{key: key, value: out, err: err, msg: "failed to get git diff"}
	default:
		count := t.e.opts.GitLogCount
		if n, err := strconv.Atoi(d.Attr("count")); err == nil && n > 0 {
			count = n
		}
		out, err := inspector.Log(ctx, count)
		return queryResult{key: "git-log:" + strconv.Itoa(count), value: out, err: err, msg: "failed to get git log"}
	}
}
