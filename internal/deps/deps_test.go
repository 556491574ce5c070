package deps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args string
}

type fakeRunner struct {
	calls []call
	fail  map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) (string, error) {
	f.calls = append(f.calls, call{name, strings.Join(args, " ")})
	if f.fail[name] {
		return "", errors.New(name + " failed")
	}
	return "ok", nil
}

func newInstaller(t *testing.T, manager string, havePNPM bool, runner *fakeRunner) *Installer {
	t.Helper()
	i := New(t.TempDir(), manager, nil)
	i.Runner = runner
	i.LookPath = func(name string) (string, error) {
		if havePNPM {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	return i
}

func TestAddPrefersPNPMAndFallsBack(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"pnpm": true}}
	i := newInstaller(t, ManagerAuto, true, r)

	require.NoError(t, i.Add(context.Background(), []string{"react", "zod"}))
	assert.Equal(t, []call{
		{"pnpm", "add react zod"},
		{"npm", "install --legacy-peer-deps react zod"},
	}, r.calls)
}

func TestAddWithoutPNPM(t *testing.T) {
	r := &fakeRunner{}
	i := newInstaller(t, ManagerAuto, false, r)

	require.NoError(t, i.Update(context.Background(), "react"))
	assert.Equal(t, []call{{"npm", "install --legacy-peer-deps react@latest"}}, r.calls)
}

func TestExplicitManagerHasNoFallback(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"pnpm": true}}
	i := newInstaller(t, ManagerPNPM, true, r)

	err := i.Add(context.Background(), []string{"react"})
	require.Error(t, err)
	assert.Len(t, r.calls, 1)
}

func TestRejectsFlagLikePackages(t *testing.T) {
	r := &fakeRunner{}
	i := newInstaller(t, ManagerNPM, false, r)

	assert.Error(t, i.Add(context.Background(), []string{"--global"}))
	assert.Error(t, i.Update(context.Background(), "a;rm"))
	_, err := i.RunScript(context.Background(), "-x")
	assert.Error(t, err)
	assert.Empty(t, r.calls)
}

func TestListAndManifestFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := List(dir)
	assert.ErrorIs(t, err, ErrNoManifest)

	pkg := `{"dependencies":{"react":"^18.0.0"},"devDependencies":{"vitest":"1.0.0"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkg), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pnpm-lock.yaml"), nil, 0644))

	list, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"react@^18.0.0", "vitest@1.0.0 (dev)"}, list)

	i := New(dir, "", nil)
	assert.Equal(t, []string{"package.json", "pnpm-lock.yaml"}, i.ManifestFiles())
}
