package parser

import (
	"regexp"
	"strings"
)

var attrRegex = regexp.MustCompile(`([\w-]+)="([^"]*)"`)

// ParseAttributes reads name="value" pairs. A repeated name keeps its
// last value. Anything that is not a well-formed pair is ignored.
func ParseAttributes(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRegex.FindAllStringSubmatch(raw, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}

// NormalizePath converts Windows separators to forward slashes.
func NormalizePath(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
}
