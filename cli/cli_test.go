package cli

import (
	"io"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(nil, io.Discard)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.HistoryCount != 20 || cfg.Annotate != "" || cfg.Stream {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Interactive() {
		t.Error("default mode should be interactive")
	}
}

func TestParseAnnotateWithoutValue(t *testing.T) {
	cfg, err := parse([]string{"--annotate", "--file", "resp.md"}, io.Discard)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.Annotate != "-" {
		t.Errorf("Annotate = %q, want -", cfg.Annotate)
	}
	if cfg.File != "resp.md" {
		t.Errorf("File = %q", cfg.File)
	}

	cfg, err = parse([]string{"--annotate=out.md"}, io.Discard)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.Annotate != "out.md" {
		t.Errorf("Annotate = %q, want out.md", cfg.Annotate)
	}
}

func TestParseRejectsConflicts(t *testing.T) {
	tests := [][]string{
		{"--stream", "--dry-run"},
		{"--undo", "--history"},
		{"--serve", "-s"},
		{"--no-apply"},
		{"--count", "-1"},
		{"--bogus"},
	}
	for _, args := range tests {
		if _, err := parse(args, io.Discard); err == nil {
			t.Errorf("parse(%v) succeeded, want error", args)
		}
	}
}

func TestInteractive(t *testing.T) {
	cfg, err := parse([]string{"--dry-run"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interactive() {
		t.Error("--dry-run should not be interactive")
	}
}
