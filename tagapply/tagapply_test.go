package tagapply_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/tagapply/cli"
	"github.com/sokinpui/tagapply/internal/fs"
	"github.com/sokinpui/tagapply/internal/vcs"
	"github.com/sokinpui/tagapply/model"
	"github.com/sokinpui/tagapply/tagapply"
)

func gitIdentity(t *testing.T) {
	t.Helper()
	if !vcs.Available() {
		t.Skip("git not available")
	}
	t.Setenv("GIT_AUTHOR_NAME", "Test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
}

func TestRenderSegmentsWhileStreaming(t *testing.T) {
	segs := tagapply.RenderSegments(`intro <write-file path="b.txt" description="x">partial conten`)
	require.Len(t, segs, 2)
	assert.Equal(t, "intro ", segs[0].Prose)
	d := segs[1].Directive
	require.NotNil(t, d)
	assert.Equal(t, "write-file", d.Kind)
	assert.False(t, d.Complete)
	assert.Equal(t, "partial conten", d.Body)
}

func TestExtract(t *testing.T) {
	batch := tagapply.Extract(`<write-file path="a.txt">x</write-file><rename from="a"></rename>`)
	assert.Equal(t, 1, batch.Len())
	require.Len(t, batch.Warnings, 1)
	assert.Equal(t, model.FailureMalformed, batch.Warnings[0].Kind)
}

func TestApplyBatchAgainstGit(t *testing.T) {
	gitIdentity(t)
	dir := t.TempDir()
	g := vcs.NewGit(dir)
	require.NoError(t, g.Init(context.Background()))

	ws, err := tagapply.OpenWorkspace(context.Background(), dir)
	require.NoError(t, err)
	res := tagapply.ApplyBatch(context.Background(), nil,
		`<chat-summary>Greet</chat-summary><write-file path="a.txt">hello</write-file>`, ws)

	require.Empty(t, res.Errors)
	assert.NotEmpty(t, res.CommitID)
	assert.Equal(t, []string{"a.txt"}, res.WrittenPaths)

	log, err := g.Log(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, log, "[tagapply] Greet - wrote 1 file(s)")
}

func TestApplyBatchUnchangedContentIsNotACommitFailure(t *testing.T) {
	gitIdentity(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, vcs.NewGit(dir).Init(ctx))
	ws, err := tagapply.OpenWorkspace(ctx, dir)
	require.NoError(t, err)

	res := tagapply.ApplyBatch(ctx, nil, `<write-file path="a.txt">hello</write-file>`, ws)
	require.Empty(t, res.Errors)
	require.NotEmpty(t, res.CommitID)

	res = tagapply.ApplyBatch(ctx, nil, `<write-file path="a.txt">hello</write-file>`, ws)
	assert.Empty(t, res.Errors)
	assert.False(t, res.Diverged)
	assert.Empty(t, res.CommitID)
	assert.Equal(t, []string{"a.txt"}, res.WrittenPaths)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("tmp"), 0644))
	res = tagapply.ApplyBatch(ctx, nil, `<delete path="untracked.txt"></delete>`, ws)
	assert.Empty(t, res.Errors)
	assert.False(t, res.Diverged)
	assert.Empty(t, res.CommitID)
	assert.Equal(t, []string{"untracked.txt"}, res.DeletedPaths)
	assert.NoFileExists(t, filepath.Join(dir, "untracked.txt"))
}

func TestApplyBatchFailedCopyDirIsNotCommitted(t *testing.T) {
	gitIdentity(t)
	ctx := context.Background()
	dir := t.TempDir()
	g := vcs.NewGit(dir)
	require.NoError(t, g.Init(ctx))
	for rel, content := range map[string]string{"src/a.txt": "a", "src/z/b.txt": "b", "backup/z": "file"} {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	require.NoError(t, g.Stage(ctx, "."))
	_, err := g.Commit(ctx, "initial")
	require.NoError(t, err)

	ws, err := tagapply.OpenWorkspace(ctx, dir)
	require.NoError(t, err)
	res := tagapply.ApplyBatch(ctx, nil,
		`<copy-dir from="src" to="backup"></copy-dir><write-file path="ok.txt">ok</write-file>`, ws)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, model.FailureExecution, res.Errors[0].Kind)
	assert.NotEmpty(t, res.CommitID)
	assert.Equal(t, []string{"ok.txt"}, res.WrittenPaths)
	assert.Empty(t, res.DriftedPaths)
	assert.NoFileExists(t, filepath.Join(dir, "backup", "a.txt"))

	status, err := g.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestApplyBatchWaitsForSharedRegistry(t *testing.T) {
	dir := t.TempDir()
	ws := tagapply.Workspace{Root: dir, VCS: vcs.NewFake()}
	locks := tagapply.NewRegistry()

	unlock := locks.Lock(ws.Key())
	done := make(chan model.TransactionResult)
	go func() {
		done <- tagapply.ApplyBatch(context.Background(), locks, `<write-file path="a.txt">x</write-file>`, ws)
	}()

	select {
	case <-done:
		t.Fatal("apply ran while the workspace was locked")
	case <-time.After(50 * time.Millisecond):
	}
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))

	unlock()
	res := <-done
	assert.Empty(t, res.Errors)
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
}

func TestApplyBatchBadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".tagapply"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tagapply", "config.yaml"), []byte("version: 9\n"), 0644))

	res := tagapply.ApplyBatch(context.Background(), nil, `<write-file path="a">x</write-file>`,
		tagapply.Workspace{Root: dir, VCS: vcs.NewFake()})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, model.FailureWorkspace, res.Errors[0].Kind)
	assert.NoFileExists(t, filepath.Join(dir, "a"))
}

func TestAnnotate(t *testing.T) {
	res := model.TransactionResult{Errors: []model.Failure{{Message: "boom"}}}
	assert.Equal(t, "text\n\n<output type=\"error\" message=\"boom\"></output>", tagapply.Annotate("text", res))
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0644))
	resolver, err := fs.NewPathResolver(dir)
	require.NoError(t, err)

	batch := tagapply.Extract(`<write-file path="a.txt">one
three
</write-file>
<delete path="b.txt"></delete>
<edit path="a.txt">
@@ -10,2 +10,2 @@
 one
-two
+2
</edit>`)

	var buf bytes.Buffer
	n := tagapply.Preview(&buf, resolver, batch)
	out := buf.String()

	assert.Equal(t, 3, n)
	assert.Contains(t, out, `write-file path="a.txt"`)
	assert.Contains(t, out, "-two\n+three")
	assert.Contains(t, out, `delete path="b.txt"`)
	assert.Contains(t, out, "@@ -1,2 +1,2 @@")
	assert.Less(t, strings.Index(out, "write-file"), strings.Index(out, "delete"))
}

func TestAppApplyHistoryUndo(t *testing.T) {
	gitIdentity(t)
	dir := t.TempDir()
	resp := filepath.Join(t.TempDir(), "response.md")
	text := `<write-file path="a.txt">hello</write-file><rename from="missing" to="x"></rename>`
	require.NoError(t, os.WriteFile(resp, []byte(text), 0644))
	annotated := filepath.Join(t.TempDir(), "annotated.md")

	app, err := tagapply.New(&cli.Config{Workspace: dir, File: resp, Annotate: annotated, NoAnimation: true}, nil)
	require.NoError(t, err)
	summary, err := app.Execute()
	app.Close()
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, summary.Written)
	assert.Len(t, summary.Failed, 1)
	assert.NotEmpty(t, summary.CommitID)
	data, err := os.ReadFile(annotated)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), text))
	assert.Contains(t, string(data), `<output type="error"`)

	var out bytes.Buffer
	app, err = tagapply.New(&cli.Config{Workspace: dir, History: true, HistoryCount: 5}, nil)
	require.NoError(t, err)
	app.SetOutput(&out)
	summary, err = app.Execute()
	app.Close()
	require.NoError(t, err)
	assert.Equal(t, "1 history entr(ies).", summary.Message)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	app, err = tagapply.New(&cli.Config{Workspace: dir, Undo: true}, nil)
	require.NoError(t, err)
	summary, err = app.Execute()
	require.NoError(t, err)
	assert.Contains(t, summary.Message, "Reverted commit")
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))

	summary, err = app.Execute()
	app.Close()
	require.NoError(t, err)
	assert.Equal(t, "No operation to undo.", summary.Message)
}

func TestAppDryRunTouchesNothing(t *testing.T) {
	gitIdentity(t)
	dir := t.TempDir()
	resp := filepath.Join(t.TempDir(), "response.md")
	require.NoError(t, os.WriteFile(resp, []byte("```go\npackage main\n```\n<write-file path=\"a.txt\">hi</write-file>"), 0644))

	var out bytes.Buffer
	app, err := tagapply.New(&cli.Config{Workspace: dir, File: resp, DryRun: true}, nil)
	require.NoError(t, err)
	defer app.Close()
	app.SetOutput(&out)

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "Dry run: 1 directive(s), nothing applied.", summary.Message)
	assert.Contains(t, out.String(), "+hi")
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
}
