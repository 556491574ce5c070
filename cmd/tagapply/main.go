package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/tagapply/cli"
	"github.com/sokinpui/tagapply/internal/server"
	"github.com/sokinpui/tagapply/internal/tui"
	"github.com/sokinpui/tagapply/internal/ui"
	"github.com/sokinpui/tagapply/model"
	"github.com/sokinpui/tagapply/tagapply"
)

func main() {
	cfg, err := cli.ParseFlags(os.Args[1:])
	if err != nil {
		// pflag already prints the error message.
		os.Exit(1)
	}

	if cfg.Serve {
		if err := server.Serve(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app, err := tagapply.New(cfg, tagapply.NewRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	err = run(app, cfg)
	if err == nil {
		report(app)
	}
	app.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var detailed *tagapply.DetailedError
		if errors.As(err, &detailed) && !cfg.Interactive() {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		os.Exit(1)
	}
}

func run(app *tagapply.App, cfg *cli.Config) error {
	if cfg.Stream {
		return runStream(app, cfg)
	}

	if !cfg.Interactive() {
		bar := ui.NewProgressBar(0, "Applying")
		app.SetProgressCallback(bar.Set)
		summary, err := app.Execute()
		bar.Finish()
		if err != nil {
			return err
		}
		ui.PrintSummary(summary)
		return nil
	}

	return runProgram(tui.New(app))
}

func runStream(app *tagapply.App, cfg *cli.Config) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	updates, err := app.Stream(ctx)
	if err != nil {
		return err
	}

	if cfg.Interactive() {
		return runProgram(tui.NewStream(app, updates, stop, cfg.NoApply))
	}

	// Without the live view an interrupt ends a followed file.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		select {
		case <-interrupt:
			stop()
		case <-ctx.Done():
		}
	}()

	var text string
	for t := range updates {
		text = t
	}
	if cfg.NoApply {
		return nil
	}
	summary, err := app.Process(context.Background(), text)
	if err != nil {
		return err
	}
	ui.PrintSummary(summary)
	return nil
}

func runProgram(m *tui.Model) error {
	// Keys come from the terminal; stdin may carry the response.
	p := tea.NewProgram(m, tea.WithInputTTY())
	m.SetProgram(p)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	if fm, ok := final.(*tui.Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}

// report prints what the live view does not show once it has exited.
func report(app *tagapply.App) {
	if res := app.LastResult(); res != nil {
		printResult(*res)
	}
	app.Report()
}

func printResult(res model.TransactionResult) {
	ui.PrintWarnings(res.Warnings)
	ui.PrintQueryResults(res.QueryResults)
}
