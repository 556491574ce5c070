// Package catalog defines the closed set of directive kinds the engine
// understands and the attribute schema of each.
package catalog

import (
	"fmt"
	"sort"
)

// Kind identifies a directive tag.
type Kind int

const (
	Unknown Kind = iota
	WriteFile
	Rename
	Move
	CopyFile
	CopyDir
	Delete
	Mkdir
	AppendFile
	PrependFile
	ReplaceFile
	Edit
	AddDependency
	UpdateDep
	ExecuteSQL
	RunScript
	ReadFile
	ReadFiles
	ListFiles
	SearchFiles
	SearchFileContent
	GitStatus
	GitDiff
	GitLog
	ListDeps
	FindRefs
	FindDef
	ShowExports
	ShowImports
	Output
	ChatSummary
	Think
	Command
)

// Phase orders side effects within one apply run.
type Phase int

const (
	// PhaseDisplay kinds never touch the workspace.
	PhaseDisplay Phase = iota
	PhaseDelete
	PhaseRelocate
	PhaseWrite
	PhaseDependency
	PhaseExternal
	PhaseQuery
)

func (p Phase) String() string {
	switch p {
	case PhaseDisplay:
		return "display"
	case PhaseDelete:
		return "delete"
	case PhaseRelocate:
		return "relocate"
	case PhaseWrite:
		return "write"
	case PhaseDependency:
		return "dependency"
	case PhaseExternal:
		return "external"
	case PhaseQuery:
		return "query"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Schema describes a directive kind.
type Schema struct {
	Kind     Kind
	Tag      string
	Required []string
	Optional []string
	// Body reports whether the content between the tags is meaningful.
	Body        bool
	Destructive bool
	Phase       Phase
	// PathAttrs name the attributes holding workspace-relative paths.
	PathAttrs []string
}

var schemas = []Schema{
	{Kind: WriteFile, Tag: "write-file", Required: []string{"path"}, Optional: []string{"description"}, Body: true, Phase: PhaseWrite, PathAttrs: []string{"path"}},
	{Kind: Rename, Tag: "rename", Required: []string{"from", "to"}, Destructive: true, Phase: PhaseRelocate, PathAttrs: []string{"from", "to"}},
	{Kind: Move, Tag: "move", Required: []string{"from", "to"}, Destructive: true, Phase: PhaseRelocate, PathAttrs: []string{"from", "to"}},
	{Kind: CopyFile, Tag: "copy-file", Required: []string{"from", "to"}, Phase: PhaseWrite, PathAttrs: []string{"from", "to"}},
	{Kind: CopyDir, Tag: "copy-dir", Required: []string{"from", "to"}, Phase: PhaseWrite, PathAttrs: []string{"from", "to"}},
	{Kind: Delete, Tag: "delete", Required: []string{"path"}, Destructive: true, Phase: PhaseDelete, PathAttrs: []string{"path"}},
	{Kind: Mkdir, Tag: "mkdir", Required: []string{"path"}, Phase: PhaseWrite, PathAttrs: []string{"path"}},
	{Kind: AppendFile, Tag: "append-file", Required: []string{"path"}, Body: true, Phase: PhaseWrite, PathAttrs: []string{"path"}},
	{Kind: PrependFile, Tag: "prepend-file", Required: []string{"path"}, Body: true, Phase: PhaseWrite, PathAttrs: []string{"path"}},
	{Kind: ReplaceFile, Tag: "replace-file", Required: []string{"path", "search", "replace"}, Destructive: true, Phase: PhaseWrite, PathAttrs: []string{"path"}},
	{Kind: Edit, Tag: "edit", Required: []string{"path"}, Optional: []string{"description"}, Body: true, Phase: PhaseWrite, PathAttrs: []string{"path"}},
	{Kind: AddDependency, Tag: "add-dependency", Required: []string{"packages"}, Phase: PhaseDependency},
	{Kind: UpdateDep, Tag: "update-dep", Required: []string{"package"}, Phase: PhaseDependency},
	{Kind: ExecuteSQL, Tag: "execute-sql", Optional: []string{"description"}, Body: true, Destructive: true, Phase: PhaseExternal},
	{Kind: RunScript, Tag: "run-script", Required: []string{"script"}, Destructive: true, Phase: PhaseExternal},
	{Kind: ReadFile, Tag: "read-file", Required: []string{"path"}, Phase: PhaseQuery, PathAttrs: []string{"path"}},
	{Kind: ReadFiles, Tag: "read-files", Required: []string{"paths"}, Phase: PhaseQuery},
	{Kind: ListFiles, Tag: "list-files", Optional: []string{"dir"}, Phase: PhaseQuery, PathAttrs: []string{"dir"}},
	{Kind: SearchFiles, Tag: "search-files", Required: []string{"pattern"}, Phase: PhaseQuery},
	{Kind: SearchFileContent, Tag: "search-file-content", Required: []string{"path", "query"}, Phase: PhaseQuery, PathAttrs: []string{"path"}},
	{Kind: GitStatus, Tag: "git-status", Phase: PhaseQuery},
	{Kind: GitDiff, Tag: "git-diff", Optional: []string{"path"}, Phase: PhaseQuery, PathAttrs: []string{"path"}},
	{Kind: GitLog, Tag: "git-log", Optional: []string{"count"}, Phase: PhaseQuery},
	{Kind: ListDeps, Tag: "list-deps", Phase: PhaseQuery},
	{Kind: FindRefs, Tag: "find-refs", Required: []string{"symbol"}, Phase: PhaseQuery},
	{Kind: FindDef, Tag: "find-def", Required: []string{"symbol"}, Phase: PhaseQuery},
	{Kind: ShowExports, Tag: "show-exports", Required: []string{"path"}, Phase: PhaseQuery, PathAttrs: []string{"path"}},
	{Kind: ShowImports, Tag: "show-imports", Required: []string{"path"}, Phase: PhaseQuery, PathAttrs: []string{"path"}},
	{Kind: Output, Tag: "output", Optional: []string{"type", "message"}, Body: true, Phase: PhaseDisplay},
	{Kind: ChatSummary, Tag: "chat-summary", Body: true, Phase: PhaseDisplay},
	{Kind: Think, Tag: "think", Body: true, Phase: PhaseDisplay},
	{Kind: Command, Tag: "command", Required: []string{"type"}, Phase: PhaseDisplay},
}

var (
	byKind = make(map[Kind]*Schema, len(schemas))
	byTag  = make(map[string]*Schema, len(schemas))
)

func init() {
	for i := range schemas {
		s := &schemas[i]
		byKind[s.Kind] = s
		byTag[s.Tag] = s
	}
}

// Lookup returns the schema registered for a tag name.
func Lookup(tag string) (Schema, bool) {
	s, ok := byTag[tag]
	if !ok {
		return Schema{}, false
	}
	return *s, true
}

// Of returns the schema of a known kind. It panics on Unknown.
func Of(k Kind) Schema {
	s, ok := byKind[k]
	if !ok {
		panic(fmt.Sprintf("catalog: no schema for kind %d", int(k)))
	}
	return *s
}

func (k Kind) String() string {
	if s, ok := byKind[k]; ok {
		return s.Tag
	}
	return "unknown"
}

// All returns every schema in declaration order.
func All() []Schema {
	out := make([]Schema, len(schemas))
	copy(out, schemas)
	return out
}

// Tags returns every tag name, longest first so that alternations never
// let a shorter name shadow a longer one sharing its prefix.
func Tags() []string {
	tags := make([]string, 0, len(schemas))
	for _, s := range schemas {
		tags = append(tags, s.Tag)
	}
	sort.SliceStable(tags, func(i, j int) bool { return len(tags[i]) > len(tags[j]) })
	return tags
}

// ByPhase returns the kinds belonging to a phase in declaration order.
func ByPhase(p Phase) []Kind {
	var kinds []Kind
	for _, s := range schemas {
		if s.Phase == p {
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

// MissingAttrs lists required attributes absent or empty in attrs.
func (s Schema) MissingAttrs(attrs map[string]string) []string {
	var missing []string
	for _, name := range s.Required {
		if attrs[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Mutating reports whether directives of this schema change the workspace.
func (s Schema) Mutating() bool {
	switch s.Phase {
	case PhaseDelete, PhaseRelocate, PhaseWrite, PhaseDependency, PhaseExternal:
		return true
	}
	return false
}
