package apply

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/tagapply/internal/vcs"
	"github.com/sokinpui/tagapply/model"
)

// CommitMessage builds the commit message for a result.
func CommitMessage(prefix string, res model.TransactionResult) string {
	var changes []string
	if n := len(res.WrittenPaths); n > 0 {
		changes = append(changes, fmt.Sprintf("wrote %d file(s)", n))
	}
	if n := len(res.RenamedPaths); n > 0 {
		changes = append(changes, fmt.Sprintf("renamed %d file(s)", n))
	}
	if n := len(res.DeletedPaths); n > 0 {
		changes = append(changes, fmt.Sprintf("deleted %d file(s)", n))
	}
	if len(res.AddedPackages) > 0 {
		changes = append(changes, fmt.Sprintf("added %s package(s)", strings.Join(res.AddedPackages, ", ")))
	} else if res.DependenciesChanged {
		changes = append(changes, "updated dependencies")
	}
	if res.SQLExecutedCount > 0 {
		changes = append(changes, fmt.Sprintf("executed %d SQL queries", res.SQLExecutedCount))
	}

	detail := strings.Join(changes, ", ")
	switch {
	case res.ChatSummary != "" && detail != "":
		return fmt.Sprintf("%s %s - %s", prefix, res.ChatSummary, detail)
	case res.ChatSummary != "":
		return fmt.Sprintf("%s %s", prefix, res.ChatSummary)
	case detail != "":
		return fmt.Sprintf("%s %s", prefix, detail)
	}
	return prefix + " apply changes"
}

// commit records everything staged in one commit, then folds in files
// changed outside the engine with an amend. When the staged paths match
// the last commit there is nothing to record and no amend.
func (t *txn) commit() {
	if len(t.stagedOrder) == 0 {
		return
	}

	message := CommitMessage(t.e.opts.CommitPrefix, *t.res)
	id, err := t.ws.VCS.Commit(t.ctx, message)
	if errors.Is(err, vcs.ErrNothingToCommit) {
		// Identical rewrites and deletes of untracked files leave the index unchanged.
		t.log.Info("nothing to commit", zap.Strings("staged", t.stagedOrder))
		return
	}
	if err != nil {
		t.log.Error("commit failed", zap.Error(err), zap.Strings("staged", t.stagedOrder))
		t.res.Diverged = true
		t.res.Errors = append(t.res.Errors, model.Failure{
			Kind:    model.FailureCommit,
			Message: "changes were applied to disk but could not be committed",
			Cause:   err.Error(),
		})
		return
	}
	t.res.CommitID = id
	t.log.Info("committed", zap.String("commit", id), zap.Int("paths", len(t.stagedOrder)))

	if !t.e.opts.AmendDrift {
		return
	}
	t.amendDrift(message)
}

func (t *txn) amendDrift(message string) {
	status, err := t.ws.VCS.Status(t.ctx)
	if err != nil {
		t.amendFailed("could not check for files edited outside tagapply", err)
		return
	}

	var drift []string
	for _, p := range status {
		if !t.ignored(p) {
			drift = append(drift, p)
		}
	}
	if len(drift) == 0 {
		return
	}
	t.res.DriftedPaths = drift

	for _, p := range drift {
		if err := t.ws.VCS.Stage(t.ctx, p); err != nil {
			t.amendFailed("could not stage "+p, err)
			return
		}
	}
	id, err := t.ws.VCS.Amend(t.ctx, message+DriftSuffix)
	if err != nil {
		t.amendFailed("could not fold extra files into the commit: "+strings.Join(drift, ", "), err)
		return
	}
	t.log.Info("amended commit with extra files", zap.String("commit", id), zap.Strings("paths", drift))
	t.res.CommitID = id
}

// amendFailed records a drift problem. The original commit stands.
func (t *txn) amendFailed(msg string, err error) {
	t.log.Warn("amend failed", zap.String("message", msg), zap.Error(err))
	t.res.Warnings = append(t.res.Warnings, model.Failure{
		Kind:    model.FailureAmend,
		Message: msg,
		Cause:   err.Error(),
	})
}

func (t *txn) ignored(path string) bool {
	for _, prefix := range t.e.opts.IgnoreDrift {
		if strings.HasPrefix(path, prefix) || path+"/" == prefix {
			return true
		}
	}
	return false
}
