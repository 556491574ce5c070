package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sokinpui/tagapply/model"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := Out
	Out = &buf
	t.Cleanup(func() { Out = old })
	return &buf
}

func TestPrintSummary(t *testing.T) {
	buf := capture(t)
	PrintSummary(model.Summary{
		Written:  []string{"a.txt"},
		Deleted:  []string{"b.txt"},
		Failed:   []string{"execution: boom"},
		CommitID: "abc123",
	})
	out := buf.String()
	assert.Contains(t, out, "Wrote 1 file(s):")
	assert.Contains(t, out, "- a.txt")
	assert.Contains(t, out, "Deleted 1 file(s):")
	assert.Contains(t, out, "1 problem(s):")
	assert.Contains(t, out, "Committed abc123")
	assert.NotContains(t, out, "Renamed")
}

func TestPrintSummaryEmpty(t *testing.T) {
	buf := capture(t)
	PrintSummary(model.Summary{Message: "No changes were applied."})
	assert.Contains(t, buf.String(), "No files were updated.")
	assert.Contains(t, buf.String(), "No changes were applied.")
}

func TestPrintQueryResultsSorted(t *testing.T) {
	buf := capture(t)
	PrintQueryResults(map[string]string{"read-file:b": "B\n", "git-status": ""})
	out := buf.String()
	assert.Less(t, bytes.Index([]byte(out), []byte("git-status")), bytes.Index([]byte(out), []byte("read-file:b")))
	assert.Contains(t, out, "(empty)")
}

func TestProgressBar(t *testing.T) {
	buf := capture(t)
	p := NewProgressBar(0, "Applying")
	p.Start()
	assert.Empty(t, buf.String())
	p.Set(1, 2)
	p.Finish()
	assert.Contains(t, buf.String(), "[1/2] 50.0%")
}
