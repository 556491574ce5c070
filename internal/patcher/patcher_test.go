package patcher

import (
	"errors"
	"testing"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		source string
		diff   string
		want   string
	}{
		{
			name:   "wrong line numbers",
			source: "a\nb\nc\n",
			diff:   "--- a/x\n+++ b/x\n@@ -10,3 +10,3 @@\n a\n-b\n+B\n c\n",
			want:   "a\nB\nc\n",
		},
		{
			name:   "whitespace differences",
			source: "func f() {\n\treturn 1\n}\n",
			diff:   "@@ @@\n func f() {\n-    return 1\n+\treturn 2\n }",
			want:   "func f() {\n\treturn 2\n}\n",
		},
		{
			name:   "new file",
			source: "",
			diff:   "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,2 @@\n+x\n+y\n",
			want:   "x\ny\n",
		},
		{
			name:   "two hunks",
			source: "one\ntwo\nthree\nfour\nfive\n",
			diff:   "@@ -1 +1 @@\n-one\n+ONE\n two\n@@ -4 +4 @@\n four\n-five\n",
			want:   "ONE\ntwo\nthree\nfour\n",
		},
		{
			name:   "blank lines in source are tolerated",
			source: "a\n\nb\nc\n",
			diff:   "@@ @@\n a\n b\n+inserted\n c\n",
			want:   "a\n\nb\ninserted\nc\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.source, tt.diff)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyErrors(t *testing.T) {
	if _, err := Apply("a\nb\n", "@@ @@\n x\n-y\n"); !errors.Is(err, ErrHunkNotFound) {
		t.Errorf("expected ErrHunkNotFound, got %v", err)
	}
	if _, err := Apply("a\n", "no hunks here"); !errors.Is(err, ErrEmptyDiff) {
		t.Errorf("expected ErrEmptyDiff, got %v", err)
	}
}

func TestCorrect(t *testing.T) {
	got, err := Correct("a\nb\nc\n", "@@ -10,3 +10,3 @@\n a\n-b\n+B\n c\n", "x.txt")
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	want := "--- a/x.txt\n+++ b/x.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n"
	if got != want {
		t.Errorf("Correct() = %q, want %q", got, want)
	}
}
