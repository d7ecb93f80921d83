// Command cefrj annotates English learner sentences with CEFR-J grammar
// patterns and applies M2 corrections to learner essays.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// Globals are the flags shared by every command. Non-zero values override
// the configuration file.
type Globals struct {
	Config      string `short:"c" default:"cefrj.yaml" help:"Path to the YAML configuration file." type:"path"`
	LogLevel    string `name:"log-level" enum:",debug,info,warn,error" default:"" help:"Log level (debug, info, warn, error)."`
	PatternFile string `name:"patterns" help:"Pattern table (.csv, .tsv, .yaml). Overrides patterns.file." type:"path"`
	Concurrency int    `help:"Concurrent taggings. Overrides batch.concurrency."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Annotate AnnotateCmd   `cmd:"" help:"Annotate a single sentence and print the result as JSON."`
	Correct  CorrectCmd    `cmd:"" help:"Apply the corrections of an M2 file and print original/corrected pairs."`
	Batch    BatchCmd      `cmd:"" help:"Correct and annotate every M2 file of a directory."`
	Patterns PatternsGroup `cmd:"" help:"Inspect the pattern table."`
	MCP      MCPCmd        `cmd:"" name:"mcp" help:"Serve the annotator as MCP tools over stdio."`
	Version  VersionCmd    `cmd:"" help:"Print version information."`
}

// PatternsGroup contains pattern table commands.
type PatternsGroup struct {
	List  PatternsListCmd  `cmd:"" help:"List pattern IDs and explanations."`
	Check PatternsCheckCmd `cmd:"" help:"Compile every pattern and report failures."`
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("cefrj"),
		kong.Description("CEFR-J grammar pattern annotator."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "cefrj: %v\n", err)
		return 1
	}
	return 0
}
