package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sokinpui/tagapply/internal/vcs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeyIsCleanAbsolute(t *testing.T) {
	a := Workspace{Root: "/tmp/ws/../ws/"}
	assert.Equal(t, "/tmp/ws", a.Key())
}

func TestRegistrySerializesSameKey(t *testing.T) {
	r := NewRegistry()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock("/ws")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryDifferentKeysDoNotBlock(t *testing.T) {
	r := NewRegistry()
	unlockA := r.Lock("/a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := r.Lock("/b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on /b blocked behind /a")
	}
}

func TestOpenPlainDirectory(t *testing.T) {
	dir := t.TempDir()
	ws, err := Open(context.Background(), dir)
	require.NoError(t, err)
	assert.NotNil(t, ws.VCS)
	if !vcs.Available() {
		return
	}
	// A temp dir outside any repository is its own root.
	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, ws.Root)
}

func TestOpenRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err := Open(context.Background(), file)
	assert.Error(t, err)

	_, err = Open(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
