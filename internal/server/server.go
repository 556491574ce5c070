// Package server exposes the directive engine as an MCP server so an
// editor or agent can render, extract and apply responses over stdio.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/sokinpui/tagapply/tagapply"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every tool registered.
func New() *server.MCPServer {
	s := server.NewMCPServer(
		"tagapply",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	segments := NewSegmentsTool()
	s.AddTool(segments.Definition(), segments.Handle)

	extract := NewExtractTool()
	s.AddTool(extract.Definition(), extract.Handle)

	apply := NewApplyTool(tagapply.NewRegistry())
	s.AddTool(apply.Definition(), apply.Handle)

	return s
}

// Serve runs the server on stdin and stdout until the client disconnects.
func Serve() error {
	return server.ServeStdio(New())
}

const instructions = `tagapply applies AI responses written as directive tags, for example
<write-file path="main.go">...</write-file>, to a git workspace.
Use render_segments while a response streams, extract_directives to inspect
a finished response and apply_response to execute it as one commit.`
