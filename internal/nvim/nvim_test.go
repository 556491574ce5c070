package nvim

import (
	"testing"
)

func TestConnectWithoutInstance(t *testing.T) {
	t.Setenv("NVIM_LISTEN_ADDRESS", "")
	t.Setenv("NVIM", "")
	if _, err := Connect(t.TempDir()); err != ErrNoInstance {
		t.Fatalf("Connect() error = %v, want %v", err, ErrNoInstance)
	}
}

func TestAddressPrefersListenAddress(t *testing.T) {
	t.Setenv("NVIM_LISTEN_ADDRESS", "/tmp/a.sock")
	t.Setenv("NVIM", "/tmp/b.sock")
	if got := Address(); got != "/tmp/a.sock" {
		t.Fatalf("Address() = %q", got)
	}
	t.Setenv("NVIM_LISTEN_ADDRESS", "")
	if got := Address(); got != "/tmp/b.sock" {
		t.Fatalf("Address() = %q", got)
	}
}

func TestProcessSequentially(t *testing.T) {
	var progress []int
	ok, failed := processSequentially([]string{"a", "b", "c"}, func(s string) (string, bool) {
		return s, s != "b"
	}, func(n int) { progress = append(progress, n) })

	if len(ok) != 2 || ok[0] != "a" || ok[1] != "c" {
		t.Errorf("succeeded = %v", ok)
	}
	if len(failed) != 1 || failed[0] != "b" {
		t.Errorf("failed = %v", failed)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("progress = %v", progress)
	}
}
