// Package apply executes an extracted directive batch against a workspace
// as one transaction: ordered side effects, staging, a single commit and
// folding of files edited outside the engine into that commit.
package apply

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokinpui/tagapply/internal/catalog"
	"github.com/sokinpui/tagapply/internal/config"
	"github.com/sokinpui/tagapply/internal/deps"
	"github.com/sokinpui/tagapply/internal/fs"
	"github.com/sokinpui/tagapply/internal/logging"
	"github.com/sokinpui/tagapply/internal/parser"
	"github.com/sokinpui/tagapply/internal/sqlexec"
	"github.com/sokinpui/tagapply/internal/workspace"
	"github.com/sokinpui/tagapply/model"
)

// DriftSuffix is appended to the commit message when extra files are
// folded into the commit.
const DriftSuffix = " + extra files edited outside of tagapply"

// Dependencies installs packages for one workspace.
type Dependencies interface {
	Add(ctx context.Context, packages []string) error
	Update(ctx context.Context, pkg string) error
	RunScript(ctx context.Context, script string) (string, error)
	// ManifestFiles lists the workspace-relative files a dependency change touches.
	ManifestFiles() []string
}

// ProgressUpdate is called after each mutating directive.
type ProgressUpdate func(current, total int)

// Options configures an Engine.
type Options struct {
	CommitPrefix     string
	AmendDrift       bool
	QueryConcurrency int
	GitLogCount      int
	// MigrationsDir, when set, receives a file per successful SQL directive.
	MigrationsDir string
	// IgnoreDrift lists path prefixes never folded into a commit.
	IgnoreDrift []string

	Dependencies func(root string) Dependencies
	// SQL opens the executor for a workspace. A nil func disables SQL.
	SQL func(root string) (sqlexec.Executor, error)

	Progress ProgressUpdate
}

// DefaultOptions returns options matching the default configuration.
func DefaultOptions() Options {
	return FromConfig(config.Default(), nil)
}

// FromConfig derives engine options from a workspace configuration.
func FromConfig(cfg *config.Config, log *zap.Logger) Options {
	log = logging.OrNop(log)
	opts := Options{
		CommitPrefix:     cfg.Commit.Prefix,
		AmendDrift:       cfg.Commit.AmendDrift,
		QueryConcurrency: cfg.Queries.Concurrency,
		GitLogCount:      cfg.Queries.GitLogCount,
		IgnoreDrift:      []string{config.Dir + "/"},
		Dependencies: func(root string) Dependencies {
			return deps.New(root, cfg.Dependencies.Manager, log)
		},
	}
	if cfg.SQL.WriteMigrations {
		opts.MigrationsDir = cfg.SQL.MigrationsDir
	}
	if cfg.SQL.DSN != "" {
		dsn := cfg.SQL.DSN
		opts.SQL = func(root string) (sqlexec.Executor, error) {
			path := dsn
			if !filepath.IsAbs(path) {
				path = filepath.Join(root, path)
			}
			return sqlexec.OpenSQLite(path)
		}
	}
	return opts
}

// Engine applies directive batches. One Engine may serve many workspaces
// concurrently; runs against the same workspace are serialized through
// the lock registry.
type Engine struct {
	locks *workspace.Registry
	opts  Options
	log   *zap.Logger
}

// New creates an Engine. A nil registry gets a private one.
func New(locks *workspace.Registry, opts Options, log *zap.Logger) *Engine {
	if locks == nil {
		locks = workspace.NewRegistry()
	}
	if opts.CommitPrefix == "" {
		opts.CommitPrefix = "[tagapply]"
	}
	if opts.QueryConcurrency <= 0 {
		opts.QueryConcurrency = 4
	}
	if opts.GitLogCount <= 0 {
		opts.GitLogCount = 5
	}
	return &Engine{locks: locks, opts: opts, log: logging.OrNop(log)}
}

// Apply runs batch against ws and always returns a result. Per-directive
// problems are recorded and do not stop the run. Once the workspace lock
// is held the run ignores cancellation of ctx, so it never stops between
// a side effect and its commit.
func (e *Engine) Apply(ctx context.Context, batch *parser.Batch, ws workspace.Workspace) model.TransactionResult {
	res := model.TransactionResult{ID: uuid.NewString()}
	log := e.log.With(zap.String("txn", res.ID), zap.String("workspace", ws.Key()))

	if ws.VCS == nil {
		return catastrophic(res, errors.New("workspace has no version control backend"))
	}
	resolver, err := fs.NewPathResolver(ws.Root)
	if err != nil {
		log.Error("workspace inaccessible", zap.Error(err))
		return catastrophic(res, err)
	}

	unlock := e.locks.Lock(ws.Key())
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	if batch == nil {
		batch = &parser.Batch{}
	}
	res.ChatSummary = batch.ChatSummary
	res.Warnings = append(res.Warnings, batch.Warnings...)
	res.QueryResults = make(map[string]string)

	t := &txn{
		ctx:      ctx,
		e:        e,
		ws:       ws,
		resolver: resolver,
		res:      &res,
		log:      log,
		staged:   make(map[string]bool),
		written:  make(map[string]bool),
		total:    countMutating(batch),
	}

	log.Info("applying batch", zap.Int("directives", batch.Len()), zap.Int("mutating", t.total))
	t.deletes(batch.InPhase(catalog.PhaseDelete))
	t.relocations(batch.InPhase(catalog.PhaseRelocate))
	t.writes(batch.InPhase(catalog.PhaseWrite))
	t.dependencies(batch.InPhase(catalog.PhaseDependency))
	t.external(batch.InPhase(catalog.PhaseExternal))
	t.commit()
	t.queries(batch.InPhase(catalog.PhaseQuery))

	log.Info("batch applied",
		zap.Int("written", len(res.WrittenPaths)),
		zap.Int("renamed", len(res.RenamedPaths)),
		zap.Int("deleted", len(res.DeletedPaths)),
		zap.String("commit", res.CommitID),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)))
	return res
}

func catastrophic(res model.TransactionResult, err error) model.TransactionResult {
	return model.TransactionResult{
		ID: res.ID,
		Errors: []model.Failure{{
			Kind:    model.FailureWorkspace,
			Message: "workspace is not usable",
			Cause:   err.Error(),
		}},
	}
}

func countMutating(b *parser.Batch) int {
	n := 0
	for _, p := range []catalog.Phase{catalog.PhaseDelete, catalog.PhaseRelocate, catalog.PhaseWrite, catalog.PhaseDependency, catalog.PhaseExternal} {
		n += len(b.InPhase(p))
	}
	return n
}

// txn carries the state of one Apply run.
type txn struct {
	ctx      context.Context
	e        *Engine
	ws       workspace.Workspace
	resolver *fs.PathResolver
	res      *model.TransactionResult
	log      *zap.Logger

	staged      map[string]bool
	stagedOrder []string
	written     map[string]bool
	done        int
	total       int
}

func (t *txn) progress() {
	t.done++
	if t.e.opts.Progress != nil {
		t.e.opts.Progress(t.done, t.total)
	}
}

func (t *txn) fail(d model.Directive, msg string, err error) {
	kind := model.FailureExecution
	if fs.IsPathViolation(err) {
		kind = model.FailurePathViolation
	}
	f := model.Failure{Kind: kind, Message: msg, Directive: &d}
	if err != nil {
		f.Cause = err.Error()
	}
	t.log.Warn("directive failed", zap.String("kind", d.Kind), zap.String("message", msg), zap.Error(err))
	t.res.Errors = append(t.res.Errors, f)
}

func (t *txn) warn(d model.Directive, msg string) {
	t.log.Info("directive skipped", zap.String("kind", d.Kind), zap.String("message", msg))
	t.res.Warnings = append(t.res.Warnings, model.Failure{Kind: model.FailureExecution, Message: msg, Directive: &d})
}

// errProtected rejects paths inside directories the engine must not touch.
var errProtected = fmt.Errorf("protected directory: %w", fs.ErrPathEscape)

// resolve fences rel to the workspace and returns the absolute path and
// the cleaned relative path.
func (t *txn) resolve(rel string) (string, string, error) {
	abs, err := t.resolver.Resolve(rel)
	if err != nil {
		return "", "", err
	}
	clean := t.resolver.Rel(abs)
	first := strings.SplitN(clean, "/", 2)[0]
	if first == ".git" || first == config.Dir {
		return "", "", fmt.Errorf("%q: %w", rel, errProtected)
	}
	return abs, clean, nil
}

func (t *txn) stage(rel string) {
	if err := t.ws.VCS.Stage(t.ctx, rel); err != nil {
		t.log.Warn("stage failed", zap.String("path", rel), zap.Error(err))
		t.res.Warnings = append(t.res.Warnings, model.Failure{
			Kind:    model.FailureExecution,
			Message: fmt.Sprintf("could not stage %s", rel),
			Cause:   err.Error(),
		})
		return
	}
	t.markStaged(rel)
}

func (t *txn) unstage(rel string) {
	if err := t.ws.VCS.Remove(t.ctx, rel); err != nil {
		// The file is gone from disk either way.
		t.log.Warn("remove from index failed", zap.String("path", rel), zap.Error(err))
		return
	}
	t.markStaged(rel)
}

func (t *txn) markStaged(rel string) {
	if !t.staged[rel] {
		t.staged[rel] = true
		t.stagedOrder = append(t.stagedOrder, rel)
	}
}

func (t *txn) recordWrite(rel string) {
	if !t.written[rel] {
		t.written[rel] = true
		t.res.WrittenPaths = append(t.res.WrittenPaths, rel)
	}
}
