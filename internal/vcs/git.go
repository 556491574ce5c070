package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// Git drives the git command line in a working tree.
type Git struct {
	Dir string
	// AuthorName and AuthorEmail, when set, override the repository identity.
	AuthorName  string
	AuthorEmail string
}

// NewGit returns a Git backend rooted at dir.
func NewGit(dir string) *Git {
	return &Git{Dir: dir}
}

// FindRoot returns the top level of the git repository containing dir.
func FindRoot(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// Available reports whether a git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	var full []string
	if g.AuthorName != "" {
		full = append(full, "-c", "user.name="+g.AuthorName, "-c", "user.email="+g.AuthorEmail)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}

// Init creates a repository in Dir if none exists.
func (g *Git) Init(ctx context.Context) error {
	_, err := g.run(ctx, "init", "-q")
	return err
}

func (g *Git) Stage(ctx context.Context, path string) error {
	_, err := g.run(ctx, "add", "-A", "--", path)
	return err
}

func (g *Git) Remove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "rm", "--cached", "-r", "-q", "--ignore-unmatch", "--", path)
	return err
}

func (g *Git) Commit(ctx context.Context, message string) (string, error) {
	staged, err := g.run(ctx, "diff", "--cached", "--name-only")
	if err == nil && strings.TrimSpace(staged) == "" {
		return "", ErrNothingToCommit
	}
	if _, err := g.run(ctx, "commit", "-q", "-m", message); err != nil {
		return "", err
	}
	return g.head(ctx)
}

func (g *Git) Amend(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "commit", "-q", "--amend", "-m", message); err != nil {
		return "", err
	}
	return g.head(ctx)
}

func (g *Git) head(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Status parses `git status --porcelain -z`, reporting both sides of renames.
func (g *Git) Status(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parsePorcelainZ(out), nil
}

func parsePorcelainZ(out string) []string {
	seen := make(map[string]struct{})
	fields := strings.Split(out, "\x00")
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		code, path := entry[:2], entry[3:]
		seen[path] = struct{}{}
		if code[0] == 'R' || code[0] == 'C' {
			// The source path follows as its own field.
			i++
			if i < len(fields) && fields[i] != "" {
				seen[fields[i]] = struct{}{}
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (g *Git) StatusShort(ctx context.Context) (string, error) {
	return g.run(ctx, "status", "--short")
}

func (g *Git) Diff(ctx context.Context, path string) (string, error) {
	args := []string{"diff", "HEAD"}
	if _, err := g.head(ctx); err != nil {
		args = []string{"diff"}
	}
	if path != "" {
		args = append(args, "--", path)
	}
	return g.run(ctx, args...)
}

func (g *Git) Log(ctx context.Context, count int) (string, error) {
	if count <= 0 {
		count = 5
	}
	return g.run(ctx, "log", "-n", strconv.Itoa(count), "--format=%h %an %ad %s", "--date=short")
}

// Revert creates a commit undoing commit id.
func (g *Git) Revert(ctx context.Context, id string) (string, error) {
	if _, err := g.run(ctx, "revert", "--no-edit", id); err != nil {
		return "", err
	}
	return g.head(ctx)
}
