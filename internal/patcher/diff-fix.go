package patcher

import (
	"fmt"
	"strings"
)

// hunk is one @@ section of a unified diff, stripped of its header.
type hunk []string

// parseHunks splits a unified diff into hunks. File headers and the
// (frequently wrong) @@ line numbers are discarded.
func parseHunks(diff string) []hunk {
	var hunks []hunk
	var current hunk

	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
			continue
		}
		if strings.HasPrefix(line, "@@") {
			if len(current) > 0 {
				hunks = append(hunks, current)
			}
			current = nil
			continue
		}
		if line == "" {
			// Editors often strip the single space of blank context lines.
			current = append(current, " ")
			continue
		}
		switch line[0] {
		case '+', '-', ' ':
			current = append(current, line)
		}
	}
	if len(current) > 0 {
		hunks = append(hunks, current)
	}
	kept := hunks[:0]
	for _, h := range hunks {
		if h = trimBlankContext(h); len(h) > 0 {
			kept = append(kept, h)
		}
	}
	return kept
}

// trimBlankContext drops trailing blank context lines produced by the
// diff's final newline.
func trimBlankContext(h hunk) hunk {
	for len(h) > 0 && h[len(h)-1] == " " {
		h = h[:len(h)-1]
	}
	return h
}

// targetBlock is the search pattern of a hunk: the non-blank lines that
// must already exist in the source (context and removals).
func (h hunk) targetBlock() []string {
	var block []string
	for _, line := range h {
		if line[0] == '+' {
			continue
		}
		if content := line[1:]; strings.TrimSpace(content) != "" {
			block = append(block, content)
		}
	}
	return block
}

func (h hunk) counts() (added, removed, context int) {
	for _, line := range h {
		switch line[0] {
		case '+':
			added++
		case '-':
			removed++
		default:
			context++
		}
	}
	return added, removed, context
}

// normalizeLineForMatching prepares a line for comparison by trimming whitespace
// and normalizing all internal whitespace sequences to a single space.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// matchBlock finds the 0-based index in source, at or after from, where
// block begins. Blank lines and whitespace differences are ignored.
func matchBlock(source []string, block []string, from int) int {
	if len(block) == 0 {
		return -1
	}

	normalizedBlock := make([]string, len(block))
	for i, line := range block {
		normalizedBlock[i] = normalizeLineForMatching(line)
	}

	var filtered []string
	var originalIndex []int
	for i := from; i < len(source); i++ {
		if normalized := normalizeLineForMatching(source[i]); normalized != "" {
			filtered = append(filtered, normalized)
			originalIndex = append(originalIndex, i)
		}
	}

	for i := 0; i <= len(filtered)-len(normalizedBlock); i++ {
		match := true
		for j := range normalizedBlock {
			if filtered[i+j] != normalizedBlock[j] {
				match = false
				break
			}
		}
		if match {
			return originalIndex[i]
		}
	}
	return -1
}

func buildHunkHeader(oldStart, oldLines, newStart, newLines int) string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", oldStart, oldLines, newStart, newLines)
}
