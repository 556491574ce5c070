// Package annotate folds apply failures back into a response as output
// directives, so the next turn of a conversation can see what went wrong.
package annotate

import (
	"fmt"
	"strings"

	"github.com/sokinpui/tagapply/model"
)

// Annotate appends one <output> block per failure to text. Warnings come
// first. Text without failures is returned unchanged.
func Annotate(text string, warnings, errs []model.Failure) string {
	if len(warnings) == 0 && len(errs) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for _, f := range warnings {
		writeBlock(&b, "warning", f)
	}
	for _, f := range errs {
		writeBlock(&b, "error", f)
	}
	return b.String()
}

// Result annotates text with the failures of res.
func Result(text string, res model.TransactionResult) string {
	return Annotate(text, res.Warnings, res.Errors)
}

func writeBlock(b *strings.Builder, typ string, f model.Failure) {
	msg := f.Message
	if f.Directive != nil && !strings.Contains(msg, f.Directive.Kind) {
		msg = fmt.Sprintf("%s: %s", f.Directive.Kind, msg)
	}
	fmt.Fprintf(b, "\n\n<output type=%q message=\"%s\">%s</output>",
		typ, attrEscape(msg), bodyEscape(f.Cause))
}

// attrEscape keeps the value inside one quoted attribute.
func attrEscape(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	return strings.ReplaceAll(s, "\n", " ")
}

// bodyEscape stops a cause from opening or closing tags of its own.
func bodyEscape(s string) string {
	return strings.ReplaceAll(s, "<", "&lt;")
}
