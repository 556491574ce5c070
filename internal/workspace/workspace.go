// Package workspace identifies the directory an apply run targets and
// serializes runs against the same directory.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sokinpui/tagapply/internal/vcs"
)

// Workspace is a root directory under version control.
type Workspace struct {
	Root string
	VCS  vcs.VCS
}

// Key identifies the workspace for locking: the cleaned absolute root.
func (w Workspace) Key() string {
	abs, err := filepath.Abs(w.Root)
	if err != nil {
		return filepath.Clean(w.Root)
	}
	return abs
}

// Open returns the git-backed workspace containing dir: the repository
// top level when dir is inside one, else dir itself.
func Open(ctx context.Context, dir string) (Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Workspace{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Workspace{}, fmt.Errorf("workspace %s: %w", abs, err)
	}
	if !info.IsDir() {
		return Workspace{}, fmt.Errorf("workspace %s is not a directory", abs)
	}
	root := abs
	if top, err := vcs.FindRoot(ctx, abs); err == nil && top != "" {
		root = top
	}
	return Workspace{Root: root, VCS: vcs.NewGit(root)}, nil
}

// Registry hands out one mutex per workspace key. Runs against different
// workspaces proceed in parallel; runs against the same one queue up.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry returns an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*entry)}
}

// Lock blocks until the workspace lock for key is held and returns the
// function that releases it.
func (r *Registry) Lock(key string) (unlock func()) {
	r.mu.Lock()
	e, ok := r.locks[key]
	if !ok {
		e = &entry{}
		r.locks[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

// Len reports how many workspaces currently hold or await a lock.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
