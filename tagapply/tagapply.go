// Package tagapply turns AI responses written in the directive tag
// grammar into workspace changes: segments for live rendering, validated
// directive batches, and one committed transaction per response.
package tagapply

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokinpui/tagapply/internal/annotate"
	"github.com/sokinpui/tagapply/internal/apply"
	"github.com/sokinpui/tagapply/internal/config"
	"github.com/sokinpui/tagapply/internal/parser"
	"github.com/sokinpui/tagapply/internal/workspace"
	"github.com/sokinpui/tagapply/model"
)

type (
	// Workspace is a directory under version control.
	Workspace = workspace.Workspace
	// Batch is the validated content of a finalized response.
	Batch = parser.Batch
	// Registry serializes apply runs per workspace. Share one per process.
	Registry = workspace.Registry
)

// NewRegistry returns an empty lock registry.
func NewRegistry() *Registry {
	return workspace.NewRegistry()
}

// OpenWorkspace returns the git workspace containing dir.
func OpenWorkspace(ctx context.Context, dir string) (Workspace, error) {
	return workspace.Open(ctx, dir)
}

// RenderSegments splits a possibly incomplete response into prose and
// directive segments. It is pure and safe to call on every stream update.
func RenderSegments(text string) []model.Segment {
	return parser.Segments(text)
}

// Extract parses a finalized response into a batch of valid directives.
func Extract(text string) *Batch {
	return parser.Extract(text)
}

// ApplyBatch extracts and applies a finalized response to ws using the
// workspace configuration. Runs holding the same locks never overlap on
// one workspace; a nil registry serializes nothing beyond this call. It
// never returns an error; every problem is recorded in the result.
func ApplyBatch(ctx context.Context, locks *Registry, text string, ws Workspace) model.TransactionResult {
	engine, err := newEngine(ws.Root, locks, nil, nil)
	if err != nil {
		return model.TransactionResult{
			ID: uuid.NewString(),
			Errors: []model.Failure{{
				Kind:    model.FailureWorkspace,
				Message: "workspace configuration is not usable",
				Cause:   err.Error(),
			}},
		}
	}
	return engine.Apply(ctx, parser.Extract(text), ws)
}

// Annotate appends the failures of res to text as output directives.
func Annotate(text string, res model.TransactionResult) string {
	return annotate.Result(text, res)
}

func newEngine(root string, locks *Registry, log *zap.Logger, tweak func(*apply.Options)) (*apply.Engine, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	opts := apply.FromConfig(cfg, log)
	if tweak != nil {
		tweak(&opts)
	}
	return apply.New(locks, opts, log), nil
}
