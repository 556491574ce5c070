package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/internal/parser"
	"github.com/sokinpui/tagapply/model"
)

func TestAnnotateWithoutFailures(t *testing.T) {
	assert.Equal(t, "hello", Annotate("hello", nil, nil))
}

func TestAnnotateWarningsFirst(t *testing.T) {
	d := model.Directive{Kind: "rename"}
	got := Annotate("text",
		[]model.Failure{{Kind: model.FailureExecution, Message: "x does not exist"}},
		[]model.Failure{{Kind: model.FailureExecution, Message: `cannot rename "a"`, Cause: "<b> missing", Directive: &d}})

	want := "text" +
		"\n\n<output type=\"warning\" message=\"x does not exist\"></output>" +
		"\n\n<output type=\"error\" message=\"cannot rename 'a'\">&lt;b> missing</output>"
	assert.Equal(t, want, got)
}

func TestAnnotatedTextParsesBack(t *testing.T) {
	d := model.Directive{Kind: "write-file"}
	text := Annotate(`<write-file path="a">x</write-file>`, nil,
		[]model.Failure{{Message: "failed to write a", Cause: "</output> injected", Directive: &d}})

	batch := parser.Extract(text)
	require.Empty(t, batch.Warnings)
	assert.Len(t, batch.Of(catalog.WriteFile), 1)

	segs := parser.New(nil).Segments(text)
	var outputs []*model.Directive
	for _, s := range segs {
		if s.Directive != nil && s.Directive.Kind == "output" {
			outputs = append(outputs, s.Directive)
		}
	}
	require.Len(t, outputs, 1)
	assert.Equal(t, "error", outputs[0].Attr("type"))
	assert.Equal(t, "write-file: failed to write a", outputs[0].Attr("message"))
	assert.Equal(t, "&lt;/output> injected", outputs[0].Body)
}
