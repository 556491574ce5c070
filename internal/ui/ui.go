package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/tagapply/model"
)

// Out receives all styled output. Stdout stays free for machine-readable
// results.
var Out io.Writer = os.Stderr

var (
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	InfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	PathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	FaintStyle   = lipgloss.NewStyle().Faint(true)
)

func line(style lipgloss.Style, format string, a ...any) {
	fmt.Fprintln(Out, style.Render(fmt.Sprintf(format, a...)))
}

func Header(format string, a ...any) {
	line(HeaderStyle, format, a...)
}

func Info(format string, a ...any) {
	line(InfoStyle, format, a...)
}

func Success(format string, a ...any) {
	line(SuccessStyle, format, a...)
}

func Warning(format string, a ...any) {
	line(WarningStyle, format, a...)
}

func Error(format string, a ...any) {
	line(ErrorStyle, format, a...)
}

func Path(format string, a ...any) {
	fmt.Fprintln(Out, "  "+PathStyle.Render(fmt.Sprintf(format, a...)))
}

func list(items []string) {
	for _, f := range items {
		Path("- %s", f)
	}
}

// --- Summaries ---

func PrintSummary(s model.Summary) {
	Header("\n--- Apply Summary ---")

	if len(s.Written) == 0 && len(s.Renamed) == 0 && len(s.Deleted) == 0 && len(s.Failed) == 0 {
		Info("No files were updated.")
	}
	if len(s.Written) > 0 {
		Success("Wrote %d file(s):", len(s.Written))
		list(s.Written)
	}
	if len(s.Renamed) > 0 {
		Success("Renamed %d file(s):", len(s.Renamed))
		list(s.Renamed)
	}
	if len(s.Deleted) > 0 {
		Success("Deleted %d file(s):", len(s.Deleted))
		list(s.Deleted)
	}
	if len(s.Failed) > 0 {
		Error("%d problem(s):", len(s.Failed))
		list(s.Failed)
	}
	if s.CommitID != "" {
		Info("Committed %s", s.CommitID)
	}
	if s.Message != "" {
		Warning("%s", s.Message)
	}
}

// PrintWarnings lists non-fatal problems of a run.
func PrintWarnings(warnings []model.Failure) {
	if len(warnings) == 0 {
		return
	}
	Warning("%d warning(s):", len(warnings))
	for _, w := range warnings {
		Path("- %s", w.Error())
	}
}

// PrintQueryResults writes query output in key order.
func PrintQueryResults(results map[string]string) {
	if len(results) == 0 {
		return
	}
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	Header("\n--- Query Results ---")
	for _, k := range keys {
		Info("%s", k)
		body := strings.TrimRight(results[k], "\n")
		if body == "" {
			fmt.Fprintln(Out, FaintStyle.Render("  (empty)"))
			continue
		}
		for _, l := range strings.Split(body, "\n") {
			fmt.Fprintln(Out, "  "+l)
		}
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current, total int) {
	p.current, p.total = current, total
	p.draw()
}

func (p *ProgressBar) Finish() {
	if p.total > 0 {
		fmt.Fprintln(Out)
	}
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	fmt.Fprintf(Out, "\r%s |%s| [%d/%d] %.1f%%", p.prefix, bar, p.current, p.total, percent*100)
}
