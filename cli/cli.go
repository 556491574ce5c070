package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// Config holds all the command-line flag values.
type Config struct {
	File      string
	Workspace string
	// Annotate is where the annotated response is written; "-" is stdout.
	Annotate string

	Stream  bool
	NoApply bool
	DryRun  bool
	History bool
	Undo    bool
	Serve   bool

	HistoryCount int
	Nvim         bool
	NoAnimation  bool
	Debug        bool
	CommitPrefix string
}

// ParseFlags defines and parses command-line flags using pflag.
func ParseFlags(args []string) (*Config, error) {
	return parse(args, os.Stderr)
}

func parse(args []string, out io.Writer) (*Config, error) {
	cfg := &Config{}
	fs := pflag.NewFlagSet("tagapply", pflag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVarP(&cfg.File, "file", "f", "", "Read the response from a file instead of stdin or the clipboard.")
	fs.StringVarP(&cfg.Workspace, "workspace", "w", "", "Workspace to apply to (default: git root of the current directory).")
	fs.StringVarP(&cfg.Annotate, "annotate", "a", "", "Write the response with failure annotations to a file ('-' or no value for stdout).")
	fs.Lookup("annotate").NoOptDefVal = "-"

	fs.BoolVarP(&cfg.Stream, "stream", "s", false, "Render the response live while it grows, then apply it.")
	fs.BoolVar(&cfg.NoApply, "no-apply", false, "With --stream, only render.")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Extract and preview directives without applying them.")
	fs.BoolVar(&cfg.History, "history", false, "List applied responses.")
	fs.IntVar(&cfg.HistoryCount, "count", 20, "Number of history entries to list.")
	fs.BoolVarP(&cfg.Undo, "undo", "u", false, "Revert the commit of the last applied response.")
	fs.BoolVar(&cfg.Serve, "serve", false, "Run an MCP server on stdio.")

	fs.BoolVar(&cfg.Nvim, "nvim", false, "Reload changed files in the surrounding Neovim.")
	fs.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable the spinner and live view; print a plain summary.")
	fs.BoolVar(&cfg.Debug, "debug", false, "Log at debug level.")
	fs.StringVar(&cfg.CommitPrefix, "prefix", "", "Override the commit message prefix.")

	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: tagapply [flags]")
		fmt.Fprintln(out, "\nApply the directives of an AI response from stdin (pipe), a file or the clipboard to a workspace.")
		fmt.Fprintln(out, "\nExample: pbpaste | tagapply --annotate=annotated.md")
		fmt.Fprintln(out, "\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	modes := 0
	for _, on := range []bool{c.Stream, c.DryRun, c.History, c.Undo, c.Serve} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("error: --stream, --dry-run, --history, --undo and --serve are mutually exclusive")
	}
	if c.NoApply && !c.Stream {
		return fmt.Errorf("error: --no-apply requires --stream")
	}
	if c.HistoryCount < 0 {
		return fmt.Errorf("error: --count must not be negative")
	}
	return nil
}

// Interactive reports whether the mode runs the TUI.
func (c *Config) Interactive() bool {
	return !c.NoAnimation && !c.DryRun && !c.History && !c.Serve
}
