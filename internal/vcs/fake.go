package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FakeCommit is a commit recorded by Fake.
type FakeCommit struct {
	ID      string
	Message string
	Paths   []string
}

// Fake is an in-memory VCS for tests. Dirty simulates edits made outside
// the engine; they are reported by Status until staged.
type Fake struct {
	mu      sync.Mutex
	staged  map[string]bool
	removed map[string]bool
	dirty   map[string]bool
	commits []FakeCommit

	// CommitErr and AmendErr, when set, make the next calls fail.
	CommitErr error
	AmendErr  error
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		staged:  make(map[string]bool),
		removed: make(map[string]bool),
		dirty:   make(map[string]bool),
	}
}

// MarkDirty records paths as changed outside the engine.
func (f *Fake) MarkDirty(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		f.dirty[p] = true
	}
}

// Commits returns a copy of the commit history.
func (f *Fake) Commits() []FakeCommit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCommit, len(f.commits))
	copy(out, f.commits)
	return out
}

// Staged returns the currently staged paths, sorted.
func (f *Fake) Staged() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stagedLocked()
}

func (f *Fake) stagedLocked() []string {
	var paths []string
	for p := range f.staged {
		paths = append(paths, p)
	}
	for p := range f.removed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (f *Fake) Stage(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[path] = true
	delete(f.dirty, path)
	return nil
}

func (f *Fake) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[path] = true
	delete(f.dirty, path)
	return nil
}

func (f *Fake) Commit(_ context.Context, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommitErr != nil {
		return "", f.CommitErr
	}
	paths := f.stagedLocked()
	if len(paths) == 0 {
		return "", ErrNothingToCommit
	}
	c := FakeCommit{ID: fmt.Sprintf("fake%04d", len(f.commits)+1), Message: message, Paths: paths}
	f.commits = append(f.commits, c)
	f.resetLocked()
	return c.ID, nil
}

func (f *Fake) Amend(_ context.Context, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AmendErr != nil {
		return "", f.AmendErr
	}
	if len(f.commits) == 0 {
		return "", errors.New("no commit to amend")
	}
	last := &f.commits[len(f.commits)-1]
	last.Message = message
	last.Paths = append(last.Paths, f.stagedLocked()...)
	last.ID += "a"
	f.resetLocked()
	return last.ID, nil
}

func (f *Fake) resetLocked() {
	f.staged = make(map[string]bool)
	f.removed = make(map[string]bool)
}

func (f *Fake) Status(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var paths []string
	for p := range f.dirty {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (f *Fake) StatusShort(ctx context.Context) (string, error) {
	paths, _ := f.Status(ctx)
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, " M %s\n", p)
	}
	return b.String(), nil
}

func (f *Fake) Diff(context.Context, string) (string, error) {
	return "", nil
}

func (f *Fake) Log(_ context.Context, count int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	for i := len(f.commits) - 1; i >= 0 && count > 0; i-- {
		fmt.Fprintf(&b, "%s %s\n", f.commits[i].ID, f.commits[i].Message)
		count--
	}
	return b.String(), nil
}
