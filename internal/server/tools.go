package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sokinpui/tagapply/internal/parser"
	"github.com/sokinpui/tagapply/model"
	"github.com/sokinpui/tagapply/tagapply"
)

type directiveView struct {
	Kind       string            `json:"kind"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Body       string            `json:"body,omitempty"`
	Offset     int               `json:"offset"`
	State      string            `json:"state,omitempty"`
}

type segmentView struct {
	Prose     string         `json:"prose,omitempty"`
	Directive *directiveView `json:"directive,omitempty"`
}

type failureView struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Cause     string `json:"cause,omitempty"`
	Directive string `json:"directive,omitempty"`
}

func viewFailures(fs []model.Failure) []failureView {
	out := make([]failureView, 0, len(fs))
	for _, f := range fs {
		v := failureView{Kind: string(f.Kind), Message: f.Message, Cause: f.Cause}
		if f.Directive != nil {
			v.Directive = f.Directive.Kind
		}
		out = append(out, v)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// SegmentsTool handles the render_segments MCP tool.
type SegmentsTool struct{}

// NewSegmentsTool creates a SegmentsTool.
func NewSegmentsTool() *SegmentsTool { return &SegmentsTool{} }

// Definition returns the MCP tool definition for registration.
func (t *SegmentsTool) Definition() mcp.Tool {
	return mcp.NewTool("render_segments",
		mcp.WithDescription(
			"Split a possibly incomplete response into prose and directive segments. "+
				"Directives without a closing tag are reported as pending while streaming "+
				"and as aborted once the stream has ended.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The response text received so far."),
		),
		mcp.WithBoolean("streaming",
			mcp.Description("Whether more text is still expected. Default true."),
		),
	)
}

// Handle processes the render_segments tool call.
func (t *SegmentsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	streaming := req.GetBool("streaming", true)

	segments := tagapply.RenderSegments(text)
	out := make([]segmentView, 0, len(segments))
	for _, s := range segments {
		if s.IsProse() {
			out = append(out, segmentView{Prose: s.Prose})
			continue
		}
		d := *s.Directive
		out = append(out, segmentView{Directive: &directiveView{
			Kind:       d.Kind,
			Attributes: d.Attributes,
			Body:       d.Body,
			Offset:     d.Offset,
			State:      string(parser.StateOf(d, streaming)),
		}})
	}
	return jsonResult(out)
}

// ExtractTool handles the extract_directives MCP tool.
type ExtractTool struct{}

// NewExtractTool creates an ExtractTool.
func NewExtractTool() *ExtractTool { return &ExtractTool{} }

// Definition returns the MCP tool definition for registration.
func (t *ExtractTool) Definition() mcp.Tool {
	return mcp.NewTool("extract_directives",
		mcp.WithDescription(
			"Parse a finished response into the directives that would be applied, "+
				"in document order, plus the chat summary and any malformed directives.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The complete response text."),
		),
	)
}

// Handle processes the extract_directives tool call.
func (t *ExtractTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	batch := tagapply.Extract(text)
	all := batch.All()
	directives := make([]directiveView, 0, len(all))
	for _, d := range all {
		directives = append(directives, directiveView{Kind: d.Kind, Attributes: d.Attributes, Body: d.Body, Offset: d.Offset})
	}
	return jsonResult(struct {
		ChatSummary string          `json:"chat_summary,omitempty"`
		Directives  []directiveView `json:"directives"`
		Warnings    []failureView   `json:"warnings"`
	}{batch.ChatSummary, directives, viewFailures(batch.Warnings)})
}

// ApplyTool handles the apply_response MCP tool.
type ApplyTool struct {
	locks *tagapply.Registry
	getwd func() (string, error)
}

// NewApplyTool creates an ApplyTool that defaults to the process working
// directory. Concurrent calls for one workspace queue on locks.
func NewApplyTool(locks *tagapply.Registry) *ApplyTool {
	return &ApplyTool{locks: locks, getwd: os.Getwd}
}

// Definition returns the MCP tool definition for registration.
func (t *ApplyTool) Definition() mcp.Tool {
	return mcp.NewTool("apply_response",
		mcp.WithDescription(
			"Apply every directive in a finished response to a git workspace and "+
				"commit the result. Failures of single directives are reported and do "+
				"not stop the others.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The complete response text."),
		),
		mcp.WithString("workspace",
			mcp.Description("Directory inside the target repository. Defaults to the server's working directory."),
		),
		mcp.WithBoolean("annotate",
			mcp.Description("Also return the response with failures appended as output tags."),
		),
	)
}

// Handle processes the apply_response tool call.
func (t *ApplyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	dir := req.GetString("workspace", "")
	if dir == "" {
		wd, err := t.getwd()
		if err != nil {
			return nil, fmt.Errorf("finding working directory: %w", err)
		}
		dir = wd
	}

	ws, err := tagapply.OpenWorkspace(ctx, dir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot open workspace %s: %v", dir, err)), nil
	}
	res := tagapply.ApplyBatch(ctx, t.locks, text, ws)

	out := struct {
		ID           string            `json:"id"`
		CommitID     string            `json:"commit_id,omitempty"`
		Written      []string          `json:"written,omitempty"`
		Renamed      []string          `json:"renamed,omitempty"`
		Deleted      []string          `json:"deleted,omitempty"`
		Drifted      []string          `json:"drifted,omitempty"`
		Diverged     bool              `json:"diverged,omitempty"`
		QueryResults map[string]string `json:"query_results,omitempty"`
		Warnings     []failureView     `json:"warnings"`
		Errors       []failureView     `json:"errors"`
		Annotated    string            `json:"annotated,omitempty"`
	}{
		ID:           res.ID,
		CommitID:     res.CommitID,
		Written:      res.WrittenPaths,
		Renamed:      res.RenamedPaths,
		Deleted:      res.DeletedPaths,
		Drifted:      res.DriftedPaths,
		Diverged:     res.Diverged,
		QueryResults: res.QueryResults,
		Warnings:     viewFailures(res.Warnings),
		Errors:       viewFailures(res.Errors),
	}
	if req.GetBool("annotate", false) {
		out.Annotated = tagapply.Annotate(text, res)
	}
	return jsonResult(out)
}
