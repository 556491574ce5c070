package apply

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/internal/fs"
	"github.com/sokinpui/tagapply/internal/patcher"
	"github.com/sokinpui/tagapply/internal/sqlexec"
	"github.com/sokinpui/tagapply/model"
)

func (t *txn) deletes(ds []model.Directive) {
	for _, d := range ds {
		t.deleteOne(d)
		t.progress()
	}
}

func (t *txn) deleteOne(d model.Directive) {
	abs, rel, err := t.resolve(d.Attr("path"))
	if err != nil {
		t.fail(d, fmt.Sprintf("cannot delete %s", d.Attr("path")), err)
		return
	}
	if rel == "." {
		t.fail(d, "refusing to delete the workspace root", fs.ErrPathEscape)
		return
	}
	if !fs.Exists(abs) {
		t.warn(d, fmt.Sprintf("%s does not exist; nothing to delete", rel))
		return
	}
	if err := os.RemoveAll(abs); err != nil {
		t.fail(d, fmt.Sprintf("failed to delete %s", rel), err)
		return
	}
	t.log.Debug("deleted", zap.String("path", rel))
	t.res.DeletedPaths = append(t.res.DeletedPaths, rel)
	t.unstage(rel)
}

func (t *txn) relocations(ds []model.Directive) {
	for _, d := range ds {
		t.relocate(d)
		t.progress()
	}
}

func (t *txn) relocate(d model.Directive) {
	label := fmt.Sprintf("%s -> %s", d.Attr("from"), d.Attr("to"))
	fromAbs, fromRel, err := t.resolve(d.Attr("from"))
	if err != nil {
		t.fail(d, "cannot "+d.Kind+" "+label, err)
		return
	}
	toAbs, toRel, err := t.resolve(d.Attr("to"))
	if err != nil {
		t.fail(d, "cannot "+d.Kind+" "+label, err)
		return
	}
	if !fs.Exists(fromAbs) {
		t.fail(d, fmt.Sprintf("cannot %s %s", d.Kind, label), fmt.Errorf("source %s does not exist", fromRel))
		return
	}
	if err := os.MkdirAll(filepath.Dir(toAbs), 0755); err != nil {
		t.fail(d, "cannot create target directory for "+label, err)
		return
	}
	if err := os.Rename(fromAbs, toAbs); err != nil {
		t.fail(d, fmt.Sprintf("failed to %s %s", d.Kind, label), err)
		return
	}
	t.log.Debug("relocated", zap.String("from", fromRel), zap.String("to", toRel))
	t.res.RenamedPaths = append(t.res.RenamedPaths, toRel)
	t.stage(toRel)
	t.unstage(fromRel)
}

func (t *txn) writes(ds []model.Directive) {
	for _, d := range ds {
		t.writeOne(d)
		t.progress()
	}
}

func (t *txn) writeOne(d model.Directive) {
	schema, _ := catalog.Lookup(d.Kind)
	switch schema.Kind {
	case catalog.Mkdir:
		abs, _, err := t.resolve(d.Attr("path"))
		if err == nil {
			err = os.MkdirAll(abs, 0755)
		}
		if err != nil {
			t.fail(d, "cannot create directory "+d.Attr("path"), err)
		}
		return
	case catalog.CopyFile, catalog.CopyDir:
		t.copy(d, schema.Kind)
		return
	}

	abs, rel, err := t.resolve(d.Attr("path"))
	if err != nil {
		t.fail(d, fmt.Sprintf("cannot %s %s", d.Kind, d.Attr("path")), err)
		return
	}

	content, err := t.render(schema.Kind, d, abs)
	if err != nil {
		t.fail(d, fmt.Sprintf("cannot %s %s", d.Kind, rel), err)
		return
	}
	if err := fs.WriteFileAtomic(abs, []byte(content), 0644); err != nil {
		t.fail(d, fmt.Sprintf("failed to write %s", rel), err)
		return
	}
	t.log.Debug("wrote", zap.String("kind", d.Kind), zap.String("path", rel), zap.Int("bytes", len(content)))
	t.recordWrite(rel)
	t.stage(rel)
}

// render computes the new content of the file at abs for a write-class
// directive. Nothing touches the disk until it succeeds.
func (t *txn) render(kind catalog.Kind, d model.Directive, abs string) (string, error) {
	if kind == catalog.WriteFile {
		return d.Body, nil
	}

	existing, err := os.ReadFile(abs)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	missing := err != nil

	switch kind {
	case catalog.AppendFile:
		return string(existing) + d.Body, nil
	case catalog.PrependFile:
		return d.Body + string(existing), nil
	case catalog.ReplaceFile:
		if missing {
			return "", fmt.Errorf("file does not exist")
		}
		search := d.Attr("search")
		if !strings.Contains(string(existing), search) {
			return "", fmt.Errorf("search text %q not found", search)
		}
		return strings.ReplaceAll(string(existing), search, d.Attr("replace")), nil
	case catalog.Edit:
		return patcher.Apply(string(existing), d.Body)
	}
	return "", fmt.Errorf("unsupported write kind %s", kind)
}

func (t *txn) copy(d model.Directive, kind catalog.Kind) {
	label := fmt.Sprintf("%s -> %s", d.Attr("from"), d.Attr("to"))
	fromAbs, _, err := t.resolve(d.Attr("from"))
	if err != nil {
		t.fail(d, "cannot copy "+label, err)
		return
	}
	toAbs, toRel, err := t.resolve(d.Attr("to"))
	if err != nil {
		t.fail(d, "cannot copy "+label, err)
		return
	}

	if kind == catalog.CopyFile {
		err = fs.CopyFile(fromAbs, toAbs)
	} else {
		_, err = fs.CopyDir(fromAbs, toAbs)
	}
	if err != nil {
		t.fail(d, "failed to copy "+label, err)
		return
	}
	t.recordWrite(toRel)
	t.stage(toRel)
}

func (t *txn) dependencies(ds []model.Directive) {
	if len(ds) == 0 {
		return
	}
	if t.e.opts.Dependencies == nil {
		for _, d := range ds {
			t.fail(d, "dependency changes are not configured", nil)
			t.progress()
		}
		return
	}
	installer := t.e.opts.Dependencies(t.resolver.Root())

	var adds []model.Directive
	var packages []string
	for _, d := range ds {
		if d.Kind == catalog.AddDependency.String() {
			adds = append(adds, d)
			packages = append(packages, strings.Fields(d.Attr("packages"))...)
		}
	}

	changed := false
	if len(adds) > 0 {
		// All additions go through one install.
		if err := installer.Add(t.ctx, packages); err != nil {
			t.fail(adds[0], fmt.Sprintf("failed to add dependencies: %s", strings.Join(packages, ", ")), err)
		} else {
			t.res.AddedPackages = append(t.res.AddedPackages, packages...)
			changed = true
		}
		for range adds {
			t.progress()
		}
	}

	for _, d := range ds {
		if d.Kind != catalog.UpdateDep.String() {
			continue
		}
		if err := installer.Update(t.ctx, d.Attr("package")); err != nil {
			t.fail(d, "failed to update dependency "+d.Attr("package"), err)
		} else {
			changed = true
		}
		t.progress()
	}

	if !changed {
		return
	}
	t.res.DependenciesChanged = true
	for _, f := range installer.ManifestFiles() {
		if abs, rel, err := t.resolve(f); err == nil && fs.Exists(abs) {
			t.stage(rel)
		}
	}
}

func (t *txn) external(ds []model.Directive) {
	var executor sqlexec.Executor
	var openErr error
	opened := false
	defer func() {
		if executor != nil {
			executor.Close()
		}
	}()

	for _, d := range ds {
		switch d.Kind {
		case catalog.ExecuteSQL.String():
			if !opened {
				opened = true
				if t.e.opts.SQL == nil {
					openErr = sqlexec.ErrNoExecutor
				} else {
					executor, openErr = t.e.opts.SQL(t.resolver.Root())
				}
			}
			if openErr != nil {
				t.fail(d, "failed to execute SQL query", openErr)
				break
			}
			t.executeSQL(executor, d)
		case catalog.RunScript.String():
			t.runScript(d)
		}
		t.progress()
	}
}

func (t *txn) executeSQL(executor sqlexec.Executor, d model.Directive) {
	n, err := executor.Exec(t.ctx, d.Body)
	if err != nil {
		t.fail(d, "failed to execute SQL query: "+firstLine(d.Body), err)
		return
	}
	t.res.SQLExecutedCount++
	t.log.Debug("executed sql", zap.Int64("rows", n), zap.String("description", d.Attr("description")))

	if t.e.opts.MigrationsDir == "" {
		return
	}
	dirAbs, _, err := t.resolve(t.e.opts.MigrationsDir)
	if err == nil {
		var path string
		path, err = sqlexec.WriteMigration(dirAbs, d.Body, d.Attr("description"))
		if err == nil {
			t.stage(t.resolver.Rel(path))
			return
		}
	}
	t.fail(d, "failed to write SQL migration file for: "+d.Attr("description"), err)
}

func (t *txn) runScript(d model.Directive) {
	if t.e.opts.Dependencies == nil {
		t.fail(d, "scripts are not configured", nil)
		return
	}
	script := d.Attr("script")
	out, err := t.e.opts.Dependencies(t.resolver.Root()).RunScript(t.ctx, script)
	if err != nil {
		t.fail(d, "script "+script+" failed", err)
		return
	}
	t.res.QueryResults["run-script:"+script] = out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return line
}
