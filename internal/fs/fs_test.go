package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) *PathResolver {
	t.Helper()
	r, err := NewPathResolver(t.TempDir())
	require.NoError(t, err)
	return r
}

func TestResolveInsideRoot(t *testing.T) {
	r := newResolver(t)

	got, err := r.Resolve("src/app.ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "src", "app.ts"), got)
	assert.Equal(t, "src/app.ts", r.Rel(got))

	got, err = r.Resolve("src/../README.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "README.md"), got)
}

func TestResolveRejectsEscapes(t *testing.T) {
	r := newResolver(t)

	for _, p := range []string{"../x", "a/../../x", "/etc/passwd", ""} {
		_, err := r.Resolve(p)
		require.Error(t, err, p)
		assert.True(t, IsPathViolation(err), p)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	r := newResolver(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(r.Root(), "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := r.Resolve("link/secret.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestNewPathResolverRequiresDirectory(t *testing.T) {
	_, err := NewPathResolver(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = NewPathResolver(file)
	assert.Error(t, err)
}

func TestWriteFileAtomicCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c.txt")
	require.NoError(t, WriteFileAtomic(path, []byte("hello"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, WriteFileAtomic(path, []byte("bye"), 0600))
	data, _ = os.ReadFile(path)
	assert.Equal(t, "bye", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("b"), 0644))

	dst := filepath.Join(t.TempDir(), "copy")
	copied, err := CopyDir(src, dst)
	require.NoError(t, err)
	assert.Len(t, copied, 2)

	data, err := os.ReadFile(filepath.Join(dst, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.True(t, Exists(filepath.Join(dst, "a.txt")))
}

func TestCopyDirRestoresDestinationOnFailure(t *testing.T) {
	src := t.TempDir()
	for rel, content := range map[string]string{"a.txt": "new a", "b.txt": "b", "z/c.txt": "c"} {
		path := filepath.Join(src, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	dst := filepath.Join(t.TempDir(), "backup")
	require.NoError(t, os.MkdirAll(dst, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "a.txt"), []byte("old a"), 0644))
	// A file where the copy needs a directory stops the walk after a.txt and b.txt.
	require.NoError(t, os.WriteFile(filepath.Join(dst, "z"), []byte("in the way"), 0644))

	copied, err := CopyDir(src, dst)
	require.Error(t, err)
	assert.Nil(t, copied)

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old a", string(data))
	assert.False(t, Exists(filepath.Join(dst, "b.txt")))
	data, err = os.ReadFile(filepath.Join(dst, "z"))
	require.NoError(t, err)
	assert.Equal(t, "in the way", string(data))

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files or new entries remain")
}

func TestCopyDirRemovesCreatedDirectories(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "deep", "er"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "deep", "er", "x.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "y"), []byte("y"), 0644))

	parent := t.TempDir()
	dst := filepath.Join(parent, "out")
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "y"), 0755))

	_, err := CopyDir(src, dst)
	require.Error(t, err)
	assert.False(t, Exists(filepath.Join(dst, "deep")))
	assert.DirExists(t, filepath.Join(dst, "y"))
}
