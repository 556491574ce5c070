// Package nvim reloads buffers of a running Neovim instance after files
// changed underneath it.
package nvim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/neovim/go-client/nvim"
)

// ErrNoInstance is returned when no Neovim address is advertised.
var ErrNoInstance = errors.New("no running neovim instance")

// Manager handles the connection and interaction with a Neovim instance.
type Manager struct {
	nvim *nvim.Nvim
	root string
}

// Address returns the socket of the surrounding Neovim, if any.
func Address() string {
	if addr := os.Getenv("NVIM_LISTEN_ADDRESS"); addr != "" {
		return addr
	}
	return os.Getenv("NVIM")
}

// Connect dials the Neovim instance tagapply runs under. Paths given to
// Refresh are relative to root.
func Connect(root string) (*Manager, error) {
	addr := Address()
	if addr == "" {
		return nil, ErrNoInstance
	}
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("connect to neovim at %s: %w", addr, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Manager{nvim: v, root: root}, nil
}

// Close disconnects from Neovim.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
}

// processSequentially runs processFn over items in order.
func processSequentially[T any](
	items []T,
	processFn func(item T) (path string, success bool),
	progressCb func(int),
) (succeeded, failed []string) {
	for i, item := range items {
		path, success := processFn(item)
		if success {
			succeeded = append(succeeded, path)
		} else {
			failed = append(failed, path)
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return succeeded, failed
}

// Refresh reloads every open buffer showing one of paths. Paths without a
// buffer are skipped and reported in neither list.
func (m *Manager) Refresh(paths []string, progressCb func(int)) (reloaded, failed []string, err error) {
	open, err := m.openBuffers()
	if err != nil {
		return nil, nil, err
	}
	var targets []target
	for _, p := range paths {
		abs := filepath.Join(m.root, filepath.FromSlash(p))
		if buf, ok := open[abs]; ok {
			targets = append(targets, target{path: p, buf: buf})
		}
	}
	reloaded, failed = processSequentially(targets, m.reload, progressCb)
	return reloaded, failed, nil
}

type target struct {
	path string
	buf  nvim.Buffer
}

func (m *Manager) reload(t target) (string, bool) {
	b := m.nvim.NewBatch()
	b.Command(fmt.Sprintf("checktime %d", int(t.buf)))
	return t.path, b.Execute() == nil
}

func (m *Manager) openBuffers() (map[string]nvim.Buffer, error) {
	bufs, err := m.nvim.Buffers()
	if err != nil {
		return nil, fmt.Errorf("list buffers: %w", err)
	}
	open := make(map[string]nvim.Buffer, len(bufs))
	for _, buf := range bufs {
		name, err := m.nvim.BufferName(buf)
		if err != nil || name == "" {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(name); err == nil {
			name = resolved
		}
		open[filepath.Clean(name)] = buf
	}
	return open, nil
}
