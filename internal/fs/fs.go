package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape is returned when a path resolves outside the root.
	ErrPathEscape = errors.New("path escapes workspace root")
	// ErrAbsolutePath is returned for absolute paths.
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	// ErrEmptyPath is returned for an empty path.
	ErrEmptyPath = errors.New("empty path")
)

// IsPathViolation reports whether err came from path fencing.
func IsPathViolation(err error) bool {
	return errors.Is(err, ErrPathEscape) || errors.Is(err, ErrAbsolutePath) || errors.Is(err, ErrEmptyPath)
}

// PathResolver maps workspace-relative paths to absolute paths that are
// guaranteed to stay under its root, following symlinks.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver fenced to root. The root must exist
// and be a directory.
func NewPathResolver(root string) (*PathResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}
	return &PathResolver{root: real}, nil
}

// Root returns the absolute, symlink-free root.
func (r *PathResolver) Root() string {
	return r.root
}

// Resolve returns the absolute path for rel. It fails if rel is empty,
// absolute, or would land outside the root, including through a symlink
// in any existing ancestor.
func (r *PathResolver) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%q: %w", rel, ErrAbsolutePath)
	}

	abs := filepath.Join(r.root, filepath.FromSlash(rel))
	if !r.contains(abs) {
		return "", fmt.Errorf("%q: %w", rel, ErrPathEscape)
	}

	real, err := evalExistingPrefix(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rel, err)
	}
	if !r.contains(real) {
		return "", fmt.Errorf("%q: %w", rel, ErrPathEscape)
	}
	return abs, nil
}

// ResolveExisting is Resolve that also requires the path to exist.
func (r *PathResolver) ResolveExisting(rel string) (string, error) {
	abs, err := r.Resolve(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// Rel returns abs relative to the root using forward slashes.
func (r *PathResolver) Rel(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func (r *PathResolver) contains(abs string) bool {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExistingPrefix resolves symlinks in the longest existing ancestor of
// path and re-attaches the missing tail.
func evalExistingPrefix(path string) (string, error) {
	var tail []string
	cur := path
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{real}, tail...)
			return filepath.Join(parts...), nil
		}
		if !errors.Is(err, iofs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it into place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}

// CopyFile copies a regular file, creating parent directories of dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return WriteFileAtomic(dst, data, info.Mode().Perm())
}

// CopyDir recursively copies a directory tree. Symlinks are skipped.
// It returns the destination paths of the copied files. On failure the
// destination is put back as it was: overwritten files get their old
// content and created files and directories are removed.
func CopyDir(src, dst string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", src)
	}

	var (
		u      undoLog
		copied []string
	)
	err = filepath.WalkDir(src, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return u.mkdirAll(target)
		case d.Type()&iofs.ModeSymlink != 0:
			return nil
		default:
			if err := u.copyFile(path, target); err != nil {
				return err
			}
			copied = append(copied, target)
			return nil
		}
	})
	if err != nil {
		u.rollback()
		return nil, err
	}
	return copied, nil
}

type backup struct {
	path    string
	existed bool
	data    []byte
	perm    os.FileMode
}

// undoLog records what a multi-file copy changed so it can be reverted.
type undoLog struct {
	dirs  []string
	files []backup
}

func (u *undoLog) mkdirAll(dir string) error {
	var missing []string
	for p := dir; ; p = filepath.Dir(p) {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("mkdir %s: not a directory", p)
			}
			break
		}
		if !errors.Is(err, iofs.ErrNotExist) {
			return err
		}
		missing = append(missing, p)
		if filepath.Dir(p) == p {
			break
		}
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0755); err != nil {
			return err
		}
		u.dirs = append(u.dirs, missing[i])
	}
	return nil
}

func (u *undoLog) copyFile(src, dst string) error {
	if err := u.mkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}
	b := backup{path: dst}
	if info, err := os.Stat(dst); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", dst)
		}
		data, err := os.ReadFile(dst)
		if err != nil {
			return err
		}
		b.existed, b.data, b.perm = true, data, info.Mode().Perm()
	} else if !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	u.files = append(u.files, b)
	return CopyFile(src, dst)
}

// rollback undoes the log in reverse order. It is best effort.
func (u *undoLog) rollback() {
	for i := len(u.files) - 1; i >= 0; i-- {
		b := u.files[i]
		if b.existed {
			_ = WriteFileAtomic(b.path, b.data, b.perm)
		} else {
			_ = os.Remove(b.path)
		}
	}
	for i := len(u.dirs) - 1; i >= 0; i-- {
		_ = os.Remove(u.dirs[i])
	}
}
