package tui

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/tagapply/internal/parser"
	"github.com/sokinpui/tagapply/model"
	"github.com/sokinpui/tagapply/tagapply"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)

	badgeStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0"))
	badges     = map[parser.DisplayState]lipgloss.Style{
		parser.StateFinished: badgeStyle.Background(lipgloss.Color("78")),
		parser.StatePending:  badgeStyle.Background(lipgloss.Color("214")),
		parser.StateAborted:  badgeStyle.Background(lipgloss.Color("197")),
	}
)

const previewLines = 6

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

type textMsg string

type streamEndMsg struct{}

type progressMsg struct{ current, total int }

// --- Model ---
type Model struct {
	app      *tagapply.App
	program  *tea.Program
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	state    state
	summary  summaryMsg
	err      error
	progress progressMsg

	updates <-chan string
	stop    context.CancelFunc
	text    string
	noApply bool
}

type state int

const (
	stateStreaming state = iota
	stateProcessing
	stateSummary
	stateError
)

// New returns a model that runs app and shows its progress and summary.
func New(app *tagapply.App) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return &Model{
		app:      app,
		spinner:  s,
		renderer: renderer,
		state:    stateProcessing,
	}
}

// NewStream returns a model that renders updates live. When the stream
// ends, the final text is applied unless noApply is set. stop ends the
// stream early.
func NewStream(app *tagapply.App, updates <-chan string, stop context.CancelFunc, noApply bool) *Model {
	m := New(app)
	m.state = stateStreaming
	m.updates = updates
	m.stop = stop
	m.noApply = noApply
	return m
}

// SetProgram wires apply progress into p.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
	if m.app != nil {
		m.app.SetProgressCallback(func(current, total int) {
			p.Send(progressMsg{current, total})
		})
	}
}

// Err returns the error the run ended with, if any.
func (m *Model) Err() error {
	if e, ok := m.err.(errorMsg); ok {
		return e.err
	}
	return m.err
}

func (m *Model) Init() tea.Cmd {
	if m.state == stateStreaming {
		return tea.Batch(m.spinner.Tick, m.waitForText)
	}
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.state == stateProcessing {
				// The apply run finishes on its own; leaving now would hide its result.
				return m, nil
			}
			if m.stop != nil {
				m.stop()
			}
			return m, tea.Quit
		case "enter":
			if m.state == stateStreaming && m.stop != nil {
				m.stop()
			}
		}

	case textMsg:
		m.text = string(msg)
		return m, m.waitForText

	case streamEndMsg:
		if m.noApply {
			m.state = stateSummary
			return m, tea.Quit
		}
		m.state = stateProcessing
		return m, m.applyText

	case progressMsg:
		m.progress = msg
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing || m.state == stateStreaming {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	switch m.state {
	case stateStreaming:
		return renderSegments(tagapply.RenderSegments(m.text), true, m.renderer) +
			"\n" + fmt.Sprintf("%s Streaming... %s", m.spinner.View(), faintStyle.Render("enter: finish, q: quit"))
	case stateProcessing:
		if m.progress.total > 0 {
			return fmt.Sprintf("%s Applying %d/%d...", m.spinner.View(), m.progress.current, m.progress.total)
		}
		return fmt.Sprintf("%s Processing...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error())
	case stateSummary:
		if m.updates != nil {
			// Keep the final render on screen above the summary.
			view := renderSegments(tagapply.RenderSegments(m.text), false, m.renderer)
			if m.noApply {
				return view
			}
			return view + "\n" + m.renderSummary()
		}
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	hasContent := false
	section := func(title string, style lipgloss.Style, items []string) {
		if len(items) == 0 {
			return
		}
		hasContent = true
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range items {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	section("Wrote:", successStyle, m.summary.Written)
	section("Renamed:", successStyle, m.summary.Renamed)
	section("Deleted:", successStyle, m.summary.Deleted)
	section("Failed:", errorStyle, m.summary.Failed)

	if m.summary.CommitID != "" {
		b.WriteString(faintStyle.Render("Commit " + m.summary.CommitID))
		b.WriteString("\n")
	}
	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n")
	}
	if !hasContent && m.summary.Message == "" && m.summary.CommitID == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
	}
	return b.String()
}

func (m *Model) waitForText() tea.Msg {
	text, ok := <-m.updates
	if !ok {
		return streamEndMsg{}
	}
	return textMsg(text)
}

func (m *Model) applyText() tea.Msg {
	summary, err := m.app.Process(context.Background(), m.text)
	if err != nil {
		return errorMsg{err}
	}
	return summaryMsg{Summary: summary}
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.app.Execute()
	if err != nil {
		// Check for detailed error to print stack
		if e, ok := err.(*tagapply.DetailedError); ok {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.Stack)
		}
		return errorMsg{err}
	}
	return summaryMsg{
		Summary: summary,
	}
}

// renderSegments draws prose as markdown and directives as labelled
// boxes whose badge shows their display state.
func renderSegments(segments []model.Segment, streaming bool, r *glamour.TermRenderer) string {
	var b strings.Builder
	for _, s := range segments {
		if s.IsProse() {
			b.WriteString(renderProse(s.Prose, r))
			continue
		}
		b.WriteString(renderDirective(*s.Directive, streaming))
		b.WriteString("\n")
	}
	return b.String()
}

func renderProse(text string, r *glamour.TermRenderer) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if r != nil {
		if out, err := r.Render(text); err == nil {
			return out
		}
	}
	return text
}

func renderDirective(d model.Directive, streaming bool) string {
	st := parser.StateOf(d, streaming)
	line := badges[st].Render(string(st)) + " " + headerStyle.Render(label(d))

	body := strings.TrimRight(d.Body, "\n")
	if body == "" {
		return line
	}
	lines := strings.Split(body, "\n")
	if len(lines) > previewLines {
		if st == parser.StatePending {
			// Follow the tail while it is being written.
			lines = lines[len(lines)-previewLines:]
		} else {
			lines = append(lines[:previewLines], fmt.Sprintf("... %d more line(s)", len(strings.Split(body, "\n"))-previewLines))
		}
	}
	style := faintStyle
	if st == parser.StateAborted {
		style = warningStyle
	}
	return line + "\n" + style.Render("  "+strings.Join(lines, "\n  "))
}

// label shows the directive as its opening tag with attributes made safe
// for display.
func label(d model.Directive) string {
	names := make([]string, 0, len(d.Attributes))
	for k := range d.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("<" + d.Kind)
	for _, k := range names {
		fmt.Fprintf(&b, ` %s="%s"`, k, d.Attributes[k])
	}
	b.WriteString(">")
	return parser.SanitizeForDisplay(b.String())
}
