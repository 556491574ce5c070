// Package deps installs and inspects JavaScript package dependencies of a
// workspace through pnpm or npm.
package deps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrNoManifest is returned when the workspace has no package.json.
var ErrNoManifest = errors.New("package.json not found")

const (
	ManagerAuto = "auto"
	ManagerPNPM = "pnpm"
	ManagerNPM  = "npm"
)

// Runner executes a command in a directory and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// Installer manages the dependencies of one workspace.
type Installer struct {
	Dir      string
	Manager  string
	Runner   Runner
	LookPath func(string) (string, error)
	log      *zap.Logger
}

// New creates an Installer for dir. manager is one of auto, pnpm or npm.
func New(dir, manager string, log *zap.Logger) *Installer {
	if log == nil {
		log = zap.NewNop()
	}
	if manager == "" {
		manager = ManagerAuto
	}
	return &Installer{
		Dir:      dir,
		Manager:  manager,
		Runner:   ExecRunner{},
		LookPath: exec.LookPath,
		log:      log,
	}
}

type invocation struct {
	name string
	args []string
}

// plan returns the commands to try in order; the first success wins.
func (i *Installer) plan(pnpmArgs, npmArgs []string) []invocation {
	pnpm := invocation{ManagerPNPM, pnpmArgs}
	npm := invocation{ManagerNPM, npmArgs}
	switch i.Manager {
	case ManagerPNPM:
		return []invocation{pnpm}
	case ManagerNPM:
		return []invocation{npm}
	}
	if _, err := i.LookPath(ManagerPNPM); err == nil {
		return []invocation{pnpm, npm}
	}
	return []invocation{npm}
}

func (i *Installer) run(ctx context.Context, plan []invocation) (string, error) {
	var errs []error
	for _, inv := range plan {
		out, err := i.Runner.Run(ctx, i.Dir, inv.name, inv.args...)
		if err == nil {
			return out, nil
		}
		i.log.Warn("package manager command failed",
			zap.String("manager", inv.name),
			zap.Strings("args", inv.args),
			zap.Error(err))
		errs = append(errs, err)
	}
	return "", errors.Join(errs...)
}

func validatePackage(name string) error {
	if name == "" || strings.HasPrefix(name, "-") || strings.ContainsAny(name, " \t\n;&|`$") {
		return fmt.Errorf("invalid package name %q", name)
	}
	return nil
}

// Add installs packages.
func (i *Installer) Add(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	for _, p := range packages {
		if err := validatePackage(p); err != nil {
			return err
		}
	}
	pnpmArgs := append([]string{"add"}, packages...)
	npmArgs := append([]string{"install", "--legacy-peer-deps"}, packages...)
	_, err := i.run(ctx, i.plan(pnpmArgs, npmArgs))
	return err
}

// Update installs the latest version of pkg.
func (i *Installer) Update(ctx context.Context, pkg string) error {
	if err := validatePackage(pkg); err != nil {
		return err
	}
	spec := pkg + "@latest"
	_, err := i.run(ctx, i.plan([]string{"add", spec}, []string{"install", "--legacy-peer-deps", spec}))
	return err
}

// RunScript runs a package.json script and returns its output.
func (i *Installer) RunScript(ctx context.Context, script string) (string, error) {
	if err := validatePackage(script); err != nil {
		return "", fmt.Errorf("invalid script name %q", script)
	}
	return i.run(ctx, i.plan([]string{"run", script}, []string{"run", script}))
}

// ManifestFiles returns package.json and the lock files that exist, relative
// to the workspace.
func (i *Installer) ManifestFiles() []string {
	files := []string{"package.json"}
	for _, lock := range []string{"pnpm-lock.yaml", "package-lock.json"} {
		if _, err := os.Stat(filepath.Join(i.Dir, lock)); err == nil {
			files = append(files, lock)
		}
	}
	return files
}

type manifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	return &m, nil
}

// List returns "name@version" for dependencies and dev dependencies, sorted.
func List(dir string) ([]string, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for name, v := range m.Dependencies {
		out = append(out, name+"@"+v)
	}
	for name, v := range m.DevDependencies {
		out = append(out, name+"@"+v+" (dev)")
	}
	sort.Strings(out)
	return out, nil
}
