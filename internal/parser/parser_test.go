package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/model"
)

func TestExtractGroupsByKindInOrder(t *testing.T) {
	text := `<write-file path="a.txt">one</write-file>
<delete path="old.txt"></delete>
<write-file path="b.txt">two</write-file>`
	batch := Extract(text)
	require.Empty(t, batch.Warnings)

	writes := batch.Of(catalog.WriteFile)
	require.Len(t, writes, 2)
	assert.Equal(t, "a.txt", writes[0].Attr("path"))
	assert.Equal(t, "one", writes[0].Body)
	assert.Equal(t, "b.txt", writes[1].Attr("path"))
	assert.Len(t, batch.Of(catalog.Delete), 1)
	assert.Equal(t, 3, batch.Len())
	assert.True(t, batch.Mutating())
}

func TestExtractMissingAttributeIsMalformed(t *testing.T) {
	batch := Extract(`<rename from="a"></rename>`)
	assert.Empty(t, batch.Of(catalog.Rename))
	require.Len(t, batch.Warnings, 1)
	assert.Equal(t, model.FailureMalformed, batch.Warnings[0].Kind)
	assert.Contains(t, batch.Warnings[0].Message, "to")
	assert.False(t, batch.Mutating())
}

func TestExtractUnclosedIsMalformed(t *testing.T) {
	batch := Extract(`done <write-file path="a.txt">partial`)
	assert.Empty(t, batch.Of(catalog.WriteFile))
	require.Len(t, batch.Warnings, 1)
	assert.Contains(t, batch.Warnings[0].Message, "no closing tag")
}

func TestExtractDuplicateAttributeLastWins(t *testing.T) {
	batch := Extract(`<delete path="a" path="b"></delete>`)
	require.Len(t, batch.Of(catalog.Delete), 1)
	assert.Equal(t, "b", batch.Of(catalog.Delete)[0].Attr("path"))
}

func TestExtractNormalizesBodiesAndAttributes(t *testing.T) {
	text := "<write-file path=\"src\\app.ts\">\n```ts\nexport const a = 1;\n```\n</write-file>" +
		"<add-dependency packages=\"  react   zod \"></add-dependency>" +
		"<execute-sql>\n```sql\nCREATE TABLE t (id INTEGER);\n```\n</execute-sql>" +
		"<append-file path=\"log.txt\">\nline\n</append-file>"
	batch := Extract(text)
	require.Empty(t, batch.Warnings)

	w := batch.Of(catalog.WriteFile)[0]
	assert.Equal(t, "src/app.ts", w.Attr("path"))
	assert.Equal(t, "export const a = 1;", w.Body)

	assert.Equal(t, "react zod", batch.Of(catalog.AddDependency)[0].Attr("packages"))
	assert.Equal(t, "CREATE TABLE t (id INTEGER);", batch.Of(catalog.ExecuteSQL)[0].Body)
	assert.Equal(t, "\nline\n", batch.Of(catalog.AppendFile)[0].Body)
}

func TestExtractEmptySQLIsMalformed(t *testing.T) {
	batch := Extract("<execute-sql description=\"noop\">\n</execute-sql>")
	assert.Empty(t, batch.Of(catalog.ExecuteSQL))
	require.Len(t, batch.Warnings, 1)
}

func TestExtractChatSummaryFirstWins(t *testing.T) {
	batch := Extract("<chat-summary>  First one \n</chat-summary><chat-summary>Second</chat-summary>")
	assert.Equal(t, "First one", batch.ChatSummary)
	assert.Equal(t, 0, batch.Len())
}

func TestExtractReadFilesSplitsPaths(t *testing.T) {
	batch := Extract(`<read-files paths="a.go, b\c.go,,"></read-files>`)
	require.Len(t, batch.Of(catalog.ReadFiles), 1)
	assert.Equal(t, "a.go,b/c.go", batch.Of(catalog.ReadFiles)[0].Attr("paths"))
}

func TestTokenizerQuotedGreaterThan(t *testing.T) {
	tok := NewTokenizer()
	matches := tok.Matches(`<replace-file path="a.go" search="x > y" replace="y < x"></replace-file>`)
	require.Len(t, matches, 1)
	assert.Equal(t, catalog.ReplaceFile, matches[0].Open.Kind)

	attrs := ParseAttributes(matches[0].Open.Attrs)
	assert.Equal(t, "x > y", attrs["search"])
	assert.Equal(t, "y < x", attrs["replace"])
}

func TestTokenizerDistinguishesPrefixNames(t *testing.T) {
	tok := NewTokenizer(catalog.ReadFile, catalog.ReadFiles)
	openings := tok.Openings(`<read-files paths="a"></read-files><read-file path="b"></read-file>`)
	require.Len(t, openings, 2)
	assert.Equal(t, catalog.ReadFiles, openings[0].Kind)
	assert.Equal(t, catalog.ReadFile, openings[1].Kind)
	assert.Equal(t, 1, tok.Closings(`</read-file></read-files>`, catalog.ReadFile))
}

func TestCleanBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"surrounding newlines", "\nhello\n", "hello"},
		{"fenced with language", "\n```go\npackage a\n```\n", "package a"},
		{"fenced without language", "```\nx\ny\n```", "x\ny"},
		{"keeps indentation", "\n\n    indented\n  ", "    indented"},
		{"unbalanced fence kept", "```go\nonly opening", "```go\nonly opening"},
		{"inner fences kept", "```md\n```go\nx\n```\n```", "```go\nx\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanBody(tt.in))
		})
	}
}

func TestSanitizeForDisplay(t *testing.T) {
	in := `see <write-file path="a<b>.txt">x > y</write-file>`
	want := `see <write-file path="a＜b＞.txt">x > y</write-file>`
	assert.Equal(t, want, SanitizeForDisplay(in))
	assert.Equal(t, "plain <b>", SanitizeForDisplay("plain <b>"))
}

func TestStrayCodeBlocks(t *testing.T) {
	text := "Here is the fix:\n\n```go\nfmt.Println()\n```\n\n<write-file path=\"a.go\">\n```go\npackage a\n```\n</write-file>"
	blocks := StrayCodeBlocks(Segments(text))
	require.Len(t, blocks, 1)
	assert.Equal(t, "go", blocks[0].Lang)
	assert.Equal(t, "fmt.Println()\n", blocks[0].Content)
	assert.Equal(t, "Here is the fix:", blocks[0].Hint)
	assert.Equal(t, 4, blocks[0].Line)
}

func TestStrayCodeBlocksAfterDirective(t *testing.T) {
	text := "<delete path=\"old.txt\"></delete>\nThen run\n\n```\nnpm test\n```\n"
	blocks := StrayCodeBlocks(Segments(text))
	require.Len(t, blocks, 1)
	assert.Equal(t, "", blocks[0].Lang)
	assert.Equal(t, "npm test\n", blocks[0].Content)
	assert.Equal(t, 5, blocks[0].Line)
}
