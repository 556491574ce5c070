package tagapply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/sokinpui/tagapply/cli"
	"github.com/sokinpui/tagapply/internal/annotate"
	"github.com/sokinpui/tagapply/internal/apply"
	"github.com/sokinpui/tagapply/internal/config"
	"github.com/sokinpui/tagapply/internal/logging"
	"github.com/sokinpui/tagapply/internal/nvim"
	"github.com/sokinpui/tagapply/internal/parser"
	"github.com/sokinpui/tagapply/internal/source"
	"github.com/sokinpui/tagapply/internal/state"
	"github.com/sokinpui/tagapply/internal/vcs"
	"github.com/sokinpui/tagapply/model"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate = apply.ProgressUpdate

// App orchestrates the command line modes against one workspace.
type App struct {
	cfg              *cli.Config
	ws               Workspace
	wsCfg            *config.Config
	log              *zap.Logger
	engine           *apply.Engine
	store            *state.Store
	sourceProvider   *source.Provider
	progressCallback ProgressUpdate
	out              io.Writer

	last      *model.TransactionResult
	annotated string
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App instance for the workspace named by cfg. Apply
// runs take locks from the registry, or from a private one when nil.
func New(cfg *cli.Config, locks *Registry) (*App, error) {
	ctx := context.Background()
	dir := cfg.Workspace
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		dir = wd
	}
	ws, err := OpenWorkspace(ctx, dir)
	if err != nil {
		return nil, err
	}
	if git, ok := ws.VCS.(*vcs.Git); ok {
		if _, err := vcs.FindRoot(ctx, ws.Root); err != nil {
			if err := git.Init(ctx); err != nil {
				return nil, fmt.Errorf("failed to initialize repository: %w", err)
			}
		}
	}

	if err := config.Init(ws.Root); err != nil {
		return nil, err
	}
	wsCfg, err := config.Load(ws.Root)
	if err != nil {
		return nil, err
	}
	if cfg.CommitPrefix != "" {
		wsCfg.Commit.Prefix = cfg.CommitPrefix
	}

	logFile := wsCfg.Logging.File
	if logFile == "" {
		// The terminal belongs to the TUI and the summary.
		logFile = filepath.Join(config.Dir, "tagapply.log")
	}
	log, err := logging.New(wsCfg.Logging.Level, wsCfg.Abs(logFile), cfg.Debug)
	if err != nil {
		return nil, err
	}

	store, err := state.Open(wsCfg.Abs(wsCfg.History.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	a := &App{
		cfg:            cfg,
		ws:             ws,
		wsCfg:          wsCfg,
		log:            log,
		store:          store,
		sourceProvider: source.New(cfg.File),
		out:            os.Stdout,
	}
	opts := apply.FromConfig(wsCfg, log)
	opts.Progress = a.reportProgress
	if locks == nil {
		locks = NewRegistry()
	}
	a.engine = apply.New(locks, opts, log)
	return a, nil
}

// Close releases the history database and flushes the logger.
func (a *App) Close() {
	a.store.Close()
	a.log.Sync()
}

// Workspace returns the workspace the app applies to.
func (a *App) Workspace() Workspace {
	return a.ws
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// SetOutput redirects the machine-readable output, stdout by default.
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

func (a *App) reportProgress(current, total int) {
	if a.progressCallback != nil {
		a.progressCallback(current, total)
	}
}

// LastResult returns the result of the most recent apply, if any.
func (a *App) LastResult() *model.TransactionResult {
	return a.last
}

// Stream returns the growing response for live rendering.
func (a *App) Stream(ctx context.Context) (<-chan string, error) {
	return a.sourceProvider.Stream(ctx)
}

// Execute executes the main application logic based on parsed flags.
func (a *App) Execute() (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	ctx := context.Background()
	switch {
	case a.cfg.Undo:
		return a.undoLastOperation(ctx)
	case a.cfg.History:
		return a.listHistory(ctx)
	case a.cfg.DryRun:
		return a.dryRun()
	default:
		return a.processContent(ctx)
	}
}

// processContent reads the response from the configured source and applies it.
func (a *App) processContent(ctx context.Context) (model.Summary, error) {
	content, err := a.sourceProvider.GetContent()
	if errors.Is(err, source.ErrEmpty) {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	return a.Process(ctx, content)
}

// Process applies a finalized response, records it in the history and
// writes the annotated text when requested.
func (a *App) Process(ctx context.Context, text string) (model.Summary, error) {
	batch := parser.Extract(text)
	res := a.engine.Apply(ctx, batch, a.ws)
	a.last = &res
	a.annotated = annotate.Result(text, res)

	entry := state.Entry{
		ID:        res.ID,
		Original:  text,
		Annotated: a.annotated,
		CommitID:  res.CommitID,
		Drift:     res.DriftedPaths,
	}
	if err := a.store.Save(ctx, entry); err != nil {
		a.log.Warn("could not record history", zap.Error(err))
	}

	if a.cfg.Annotate != "" && a.cfg.Annotate != "-" {
		if err := os.WriteFile(a.cfg.Annotate, []byte(a.annotated), 0644); err != nil {
			return model.Summary{}, fmt.Errorf("failed to write annotated response: %w", err)
		}
	}
	if a.cfg.Nvim {
		a.refreshNvim(res)
	}

	summary := model.Summarize(res)
	if batch.Len() == 0 && len(batch.Warnings) == 0 {
		summary.Message = "No directives found. Nothing to do."
	}
	return summary, nil
}

// Report writes the output meant for stdout once the run is over.
func (a *App) Report() {
	if a.last != nil && a.cfg.Annotate == "-" {
		fmt.Fprint(a.out, a.annotated)
	}
}

func (a *App) refreshNvim(res model.TransactionResult) {
	m, err := nvim.Connect(a.ws.Root)
	if err != nil {
		a.log.Debug("neovim refresh skipped", zap.Error(err))
		return
	}
	defer m.Close()

	paths := append(append([]string(nil), res.WrittenPaths...), res.RenamedPaths...)
	paths = append(paths, res.DriftedPaths...)
	reloaded, failed, err := m.Refresh(paths, nil)
	if err != nil {
		a.log.Warn("neovim refresh failed", zap.Error(err))
		return
	}
	a.log.Info("neovim buffers reloaded", zap.Strings("paths", reloaded), zap.Strings("failed", failed))
}

// undoLastOperation reverts the commit of the newest applied response.
func (a *App) undoLastOperation(ctx context.Context) (model.Summary, error) {
	entry, err := a.store.Last(ctx)
	if errors.Is(err, state.ErrNotFound) {
		return model.Summary{Message: "No operation to undo."}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}

	reverter, ok := a.ws.VCS.(interface {
		Revert(ctx context.Context, id string) (string, error)
	})
	if !ok {
		return model.Summary{}, errors.New("version control backend cannot revert")
	}
	id, err := reverter.Revert(ctx, entry.CommitID)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to revert %s: %w", entry.CommitID, err)
	}
	if err := a.store.MarkReverted(ctx, entry.ID); err != nil {
		return model.Summary{}, err
	}
	a.log.Info("reverted", zap.String("entry", entry.ID), zap.String("commit", entry.CommitID), zap.String("revert", id))
	return model.Summary{
		CommitID: id,
		Message:  fmt.Sprintf("Reverted commit %s.", entry.CommitID),
	}, nil
}

func (a *App) listHistory(ctx context.Context) (model.Summary, error) {
	entries, err := a.store.List(ctx, a.cfg.HistoryCount)
	if err != nil {
		return model.Summary{}, err
	}
	for _, e := range entries {
		commit := e.CommitID
		if commit == "" {
			commit = "-"
		}
		flags := ""
		if e.Reverted {
			flags += " reverted"
		}
		if len(e.Drift) > 0 {
			flags += fmt.Sprintf(" drift=%d", len(e.Drift))
		}
		fmt.Fprintf(a.out, "%s  %s  %-12s%s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.ID, commit, flags)
	}
	return model.Summary{Message: fmt.Sprintf("%d history entr(ies).", len(entries))}, nil
}
