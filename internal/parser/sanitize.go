package parser

import "strings"

var attrEscaper = strings.NewReplacer("<", "＜", ">", "＞")

// SanitizeForDisplay replaces '<' and '>' inside directive attribute text
// with their fullwidth forms so a renderer does not read them as markup.
// It only affects display; extraction always works on the raw text.
func SanitizeForDisplay(text string) string {
	openings := defaultTokenizer.Openings(text)
	if len(openings) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, tag := range openings {
		if tag.Attrs == "" || !strings.ContainsAny(tag.Attrs, "<>") {
			continue
		}
		attrStart := tag.End - 1 - len(tag.Attrs)
		b.WriteString(text[cursor:attrStart])
		b.WriteString(attrEscaper.Replace(tag.Attrs))
		cursor = tag.End - 1
	}
	b.WriteString(text[cursor:])
	return b.String()
}
