// Package vcs abstracts the version control operations the apply engine
// needs. Paths are always relative to the workspace root and use forward
// slashes.
package vcs

import (
	"context"
	"errors"
)

// ErrNothingToCommit is returned by Commit when nothing is staged.
var ErrNothingToCommit = errors.New("nothing to commit")

// VCS is the capability set the engine uses to record changes.
type VCS interface {
	// Stage records the current on-disk state of path.
	Stage(ctx context.Context, path string) error
	// Remove records the removal of path.
	Remove(ctx context.Context, path string) error
	// Commit creates a commit from everything staged and returns its id.
	Commit(ctx context.Context, message string) (string, error)
	// Amend folds everything staged into the last commit, replacing its
	// message, and returns the new id.
	Amend(ctx context.Context, message string) (string, error)
	// Status lists paths whose on-disk state differs from the last commit.
	Status(ctx context.Context) ([]string, error)
}

// Inspector serves the read-only directive queries.
type Inspector interface {
	StatusShort(ctx context.Context) (string, error)
	Diff(ctx context.Context, path string) (string, error)
	Log(ctx context.Context, count int) (string, error)
}
