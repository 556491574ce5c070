package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/fsnotify/fsnotify"

	"github.com/sokinpui/tagapply/internal/ui"
)

// ErrEmpty is returned when the chosen source holds no text.
var ErrEmpty = errors.New("nothing to process")

// Provider determines and retrieves the response text.
type Provider struct {
	// File, when set, is read instead of stdin or the clipboard.
	File  string
	Stdin *os.File
	// ReadClipboard defaults to the system clipboard.
	ReadClipboard func() (string, error)
}

// New creates a Provider reading file, or stdin/clipboard when file is empty.
func New(file string) *Provider {
	return &Provider{File: file, Stdin: os.Stdin, ReadClipboard: clipboard.ReadAll}
}

// GetContent retrieves content from the file, stdin (if piped) or the
// clipboard, in that order.
func (p *Provider) GetContent() (string, error) {
	if p.File != "" {
		ui.Header("--- Reading from %s ---", p.File)
		data, err := os.ReadFile(p.File)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", p.File, err)
		}
		return nonEmpty(string(data))
	}

	if p.Stdin != nil && isPiped(p.Stdin) {
		ui.Header("--- Reading from stdin ---")
		content, err := io.ReadAll(p.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return nonEmpty(string(content))
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := p.ReadClipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	return nonEmpty(content)
}

func isPiped(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

func nonEmpty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmpty
	}
	return s, nil
}

// Stream returns the growing response: the followed file when File is
// set, else piped stdin read in chunks.
func (p *Provider) Stream(ctx context.Context) (<-chan string, error) {
	if p.File != "" {
		return Follow(ctx, p.File)
	}
	if p.Stdin != nil && isPiped(p.Stdin) {
		return ReadChunks(ctx, p.Stdin), nil
	}
	return nil, errors.New("streaming needs --file or piped stdin")
}

// ReadChunks sends the accumulated text of r after every read. The
// channel closes at EOF, on a read error or when ctx ends.
func ReadChunks(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		var b strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				b.Write(buf[:n])
				select {
				case out <- b.String():
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// Follow watches path and sends its full content every time it changes,
// starting with the current content. The channel closes when ctx ends or
// the watcher fails.
func Follow(ctx context.Context, path string) (<-chan string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors and streaming writers often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer watcher.Close()

		last := ""
		emit := func() bool {
			data, err := os.ReadFile(abs)
			if err != nil || string(data) == last {
				return true
			}
			last = string(data)
			select {
			case out <- last:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if !emit() {
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}
