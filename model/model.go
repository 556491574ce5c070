package model

import "fmt"

// Directive is one parsed instruction embedded in a response.
type Directive struct {
	// Kind is the tag name, e.g. "write-file".
	Kind       string
	Attributes map[string]string
	Body       string
	// Complete is false while the closing tag has not arrived yet.
	Complete bool
	// Offset is the byte position of the opening tag in the response.
	Offset int
	// Raw is the exact span of the response this directive covers.
	Raw string
}

// Attr returns the value of the named attribute, or "".
func (d Directive) Attr(name string) string {
	return d.Attributes[name]
}

// Segment is either prose or a directive. Concatenating Source() of every
// segment returned for a text yields that text.
type Segment struct {
	Prose     string
	Directive *Directive
}

// IsProse reports whether the segment carries plain text.
func (s Segment) IsProse() bool {
	return s.Directive == nil
}

// Source returns the slice of the response text covered by the segment.
func (s Segment) Source() string {
	if s.Directive != nil {
		return s.Directive.Raw
	}
	return s.Prose
}

// FailureKind classifies a Failure.
type FailureKind string

const (
	FailureMalformed     FailureKind = "malformed"
	FailurePathViolation FailureKind = "path_violation"
	FailureExecution     FailureKind = "execution"
	FailureCommit        FailureKind = "commit"
	FailureAmend         FailureKind = "amend"
	FailureWorkspace     FailureKind = "workspace"
)

// Failure records a problem with a single directive or with the
// transaction as a whole.
type Failure struct {
	Kind    FailureKind
	Message string
	// Cause is the underlying error text, kept verbatim for display.
	Cause     string
	Directive *Directive
}

func (f Failure) Error() string {
	if f.Cause == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Kind, f.Message, f.Cause)
}

// TransactionResult summarizes one apply run.
type TransactionResult struct {
	ID string

	WrittenPaths        []string
	RenamedPaths        []string
	DeletedPaths        []string
	DependenciesChanged bool
	AddedPackages       []string
	SQLExecutedCount    int

	// CommitID is empty when nothing was committed or the commit failed.
	CommitID     string
	DriftedPaths []string
	// Diverged is set when files changed on disk but the commit failed.
	Diverged bool

	ChatSummary  string
	QueryResults map[string]string

	Warnings []Failure
	Errors   []Failure
}

// Changed reports whether any mutating directive took effect.
func (r TransactionResult) Changed() bool {
	return len(r.WrittenPaths) > 0 || len(r.RenamedPaths) > 0 || len(r.DeletedPaths) > 0 ||
		r.DependenciesChanged || r.SQLExecutedCount > 0
}

// Summary holds the results of an operation for display.
type Summary struct {
	Written  []string
	Renamed  []string
	Deleted  []string
	Failed   []string
	CommitID string
	Message  string
}

// Summarize condenses a result for display.
func Summarize(r TransactionResult) Summary {
	s := Summary{
		Written:  r.WrittenPaths,
		Renamed:  r.RenamedPaths,
		Deleted:  r.DeletedPaths,
		CommitID: r.CommitID,
	}
	for _, f := range r.Errors {
		s.Failed = append(s.Failed, f.Error())
	}
	switch {
	case r.Diverged:
		s.Message = "Files changed but the commit failed; the workspace has uncommitted changes."
	case !r.Changed() && len(r.Errors) == 0:
		s.Message = "No changes were applied."
	}
	return s
}
