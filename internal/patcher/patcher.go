// Package patcher applies model-written unified diffs whose line numbers
// cannot be trusted. Hunks are located by their content instead.
package patcher

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHunkNotFound is returned when a hunk's context does not occur in the
// source.
var ErrHunkNotFound = errors.New("could not find matching block for hunk")

// ErrEmptyDiff is returned for a diff without hunks.
var ErrEmptyDiff = errors.New("diff contains no hunks")

// Apply patches source with diff and returns the new content.
func Apply(source, diff string) (string, error) {
	hunks := parseHunks(diff)
	if len(hunks) == 0 {
		return "", ErrEmptyDiff
	}

	trailingNewline := source == "" || strings.HasSuffix(source, "\n")
	var lines []string
	if source != "" {
		lines = strings.Split(strings.TrimSuffix(source, "\n"), "\n")
	}

	var out []string
	cursor := 0
	for n, h := range hunks {
		block := h.targetBlock()
		if len(block) == 0 {
			// Pure addition without context: append at the end.
			out = append(out, lines[cursor:]...)
			cursor = len(lines)
			for _, line := range h {
				out = append(out, line[1:])
			}
			continue
		}

		start := matchBlock(lines, block, cursor)
		if start < 0 {
			return "", fmt.Errorf("hunk %d: %w", n+1, ErrHunkNotFound)
		}
		out = append(out, lines[cursor:start]...)

		pos := start
		for _, line := range h {
			op, content := line[0], line[1:]
			if op == '+' {
				out = append(out, content)
				continue
			}
			want := normalizeLineForMatching(content)
			if want == "" {
				// Blank context or removal: consume one blank source line if present.
				if pos < len(lines) && normalizeLineForMatching(lines[pos]) == "" {
					if op == ' ' {
						out = append(out, lines[pos])
					}
					pos++
				}
				continue
			}
			for pos < len(lines) && normalizeLineForMatching(lines[pos]) == "" {
				out = append(out, lines[pos])
				pos++
			}
			if pos >= len(lines) || normalizeLineForMatching(lines[pos]) != want {
				return "", fmt.Errorf("hunk %d: %w", n+1, ErrHunkNotFound)
			}
			if op == ' ' {
				out = append(out, lines[pos])
			}
			pos++
		}
		cursor = pos
	}
	out = append(out, lines[cursor:]...)

	result := strings.Join(out, "\n")
	if trailingNewline && len(out) > 0 {
		result += "\n"
	}
	return result, nil
}

// Correct rewrites the @@ headers of diff so that they match source, which
// lets standard tools apply it. path is used for the file headers.
func Correct(source, diff, path string) (string, error) {
	hunks := parseHunks(diff)
	if len(hunks) == 0 {
		return "", ErrEmptyDiff
	}
	lines := strings.Split(source, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	lineDiffOffset := 0
	cursor := 0
	for n, h := range hunks {
		oldStart := 0
		if block := h.targetBlock(); len(block) > 0 {
			idx := matchBlock(lines, block, cursor)
			if idx < 0 {
				return "", fmt.Errorf("hunk %d: %w", n+1, ErrHunkNotFound)
			}
			oldStart = idx + 1
			cursor = idx
		}

		added, removed, context := h.counts()
		oldLines := context + removed
		newLines := context + added
		newStart := oldStart + lineDiffOffset
		if oldStart == 0 {
			newStart = 1
		}

		b.WriteString(buildHunkHeader(oldStart, oldLines, newStart, newLines))
		for _, line := range h {
			b.WriteString(line)
			b.WriteString("\n")
		}
		lineDiffOffset += newLines - oldLines
	}
	return b.String(), nil
}
