package parser

import (
	"strings"
	"unicode"
)

// CleanBody prepares a file or SQL body for use. Surrounding blank lines
// and trailing whitespace are removed. If the first and last remaining
// lines are both ``` fence markers (the first optionally with a language
// tag), exactly those two lines are dropped.
func CleanBody(body string) string {
	body = strings.TrimRightFunc(body, unicode.IsSpace)
	lines := strings.Split(body, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) >= 2 && isFence(lines[0]) && isClosingFence(lines[len(lines)-1]) {
		lines = lines[1 : len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func isClosingFence(line string) bool {
	return strings.TrimSpace(line) == "```"
}
