package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/syoon9/CEFRJ-annotator/internal/annostore"
	"github.com/syoon9/CEFRJ-annotator/internal/annotate"
	"github.com/syoon9/CEFRJ-annotator/internal/config"
	"github.com/syoon9/CEFRJ-annotator/internal/mcpserver"
	"github.com/syoon9/CEFRJ-annotator/internal/observe"
	"github.com/syoon9/CEFRJ-annotator/internal/resilience"
	"github.com/syoon9/CEFRJ-annotator/pkg/correction"
	"github.com/syoon9/CEFRJ-annotator/pkg/m2"
	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
)

// newAnnotator wires the configured tagger chain and pattern table.
func newAnnotator(cfg *config.Config) (*annotate.Annotator, *resilience.TaggerChain, error) {
	m, err := loadMatcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	chain, err := buildTagger(cfg, newRegistry())
	if err != nil {
		return nil, nil, err
	}
	a := annotate.New(chain, m,
		annotate.WithMetrics(observe.DefaultMetrics()),
		annotate.WithTaggerName(cfg.Tagger.Name),
	)
	return a, chain, nil
}

// AnnotateCmd annotates a single sentence.
type AnnotateCmd struct {
	Sentence []string `arg:"" help:"Sentence to annotate. Multiple arguments are joined with spaces."`
}

func (c *AnnotateCmd) Run(g *Globals, ctx context.Context) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, _, err := newAnnotator(cfg)
	if err != nil {
		return err
	}
	res, err := a.Annotate(ctx, strings.Join(c.Sentence, " "))
	if err != nil {
		return err
	}
	return printJSON(res)
}

// CorrectCmd prints the original and corrected form of every sentence of an
// M2 file. It needs no configuration.
type CorrectCmd struct {
	File string `arg:"" type:"existingfile" help:"M2 file to correct."`
	Diff bool   `help:"Also print a word-level diff."`
	JSON bool   `name:"json" help:"Print one JSON record per sentence instead."`
}

func (c *CorrectCmd) Run(g *Globals, ctx context.Context) error {
	if g.LogLevel != "" {
		setupLogging(config.LogLevel(g.LogLevel))
	}
	seq, err := m2.ParseFile(c.File)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	skipped := 0
	for s := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		skipped += s.Skipped
		corrected := s.Corrected()
		if c.JSON {
			if err := enc.Encode(correction.Summarize(s.Tokens, s.Edits)); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("Original:  %s\n", strings.Join(s.Tokens, " "))
		fmt.Printf("Corrected: %s\n", strings.Join(corrected, " "))
		if c.Diff {
			fmt.Printf("Diff:      %s\n", correction.WordDiff(s.Tokens, corrected))
		}
		fmt.Println()
	}
	if skipped > 0 {
		slog.Warn("skipped malformed annotations", "file", c.File, "count", skipped)
	}
	return nil
}

// BatchCmd corrects and annotates every M2 file of a directory.
type BatchCmd struct {
	In       string `help:"Input directory. Overrides batch.input_dir." type:"path"`
	Out      string `help:"Output directory. Overrides batch.output_dir." type:"path"`
	FailFast bool   `help:"Abort on the first failed sentence."`
	Compress bool   `help:"Write .json.xz files."`
}

func (c *BatchCmd) Run(g *Globals, ctx context.Context) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if c.In != "" {
		cfg.Batch.InputDir = c.In
	}
	if c.Out != "" {
		cfg.Batch.OutputDir = c.Out
	}
	cfg.Batch.FailFast = cfg.Batch.FailFast || c.FailFast
	cfg.Batch.Compress = cfg.Batch.Compress || c.Compress

	stopTelemetry, err := startTelemetry(ctx)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	a, chain, err := newAnnotator(cfg)
	if err != nil {
		return err
	}
	defer serveMetrics(cfg, a, chain)()

	var store annostore.Store
	if cfg.Store.Driver != config.StoreNone {
		store, err = annostore.Open(ctx, string(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	if err := os.MkdirAll(cfg.Batch.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	b := annotate.NewBatch(a, annotate.BatchConfig{
		InputDir:    cfg.Batch.InputDir,
		OutputDir:   cfg.Batch.OutputDir,
		Glob:        cfg.Batch.Glob,
		Concurrency: cfg.Batch.Concurrency,
		FailFast:    cfg.Batch.FailFast,
		Compress:    cfg.Batch.Compress,
		Store:       store,
	})
	report, err := b.Run(ctx)
	if err != nil {
		return err
	}

	var errs []error
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INPUT\tOUTPUT\tSENTENCES\tFAILED\tSKIPPED")
	for _, f := range report.Files {
		out := f.Output
		if f.Err != nil {
			out = "-"
			errs = append(errs, fmt.Errorf("%s: %w", f.Input, f.Err))
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", f.Input, out, f.Sentences, f.Failed, f.Skipped)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nrun %s: %d files, %d failed sentences\n", report.RunID, len(report.Files), report.Failed())
	return errors.Join(errs...)
}

// PatternsListCmd prints the pattern table.
type PatternsListCmd struct{}

func (c *PatternsListCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	defs, err := pattern.LoadTable(cfg.Patterns.File, tableOptions(cfg))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXPLANATION")
	for _, d := range defs {
		fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Explanation)
	}
	return w.Flush()
}

// PatternsCheckCmd compiles every pattern of the table.
type PatternsCheckCmd struct{}

func (c *PatternsCheckCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	m, err := loadMatcher(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d patterns compiled\n", cfg.Patterns.File, m.Len())
	return nil
}

// MCPCmd serves the annotator over stdio.
type MCPCmd struct {
	Watch    bool          `help:"Reload the pattern table when it changes."`
	Interval time.Duration `default:"2s" help:"Poll interval for --watch."`
}

func (c *MCPCmd) Run(g *Globals, ctx context.Context) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	stopTelemetry, err := startTelemetry(ctx)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	a, chain, err := newAnnotator(cfg)
	if err != nil {
		return err
	}
	defer serveMetrics(cfg, a, chain)()

	if c.Watch {
		w, err := config.NewWatcher(cfg.Patterns.File,
			func(data []byte) (*pattern.Matcher, error) {
				defs, err := pattern.LoadTableFromReader(bytes.NewReader(data), pattern.FormatFromPath(cfg.Patterns.File), tableOptions(cfg))
				if err != nil {
					return nil, err
				}
				return compile(cfg, defs)
			},
			func(_, m *pattern.Matcher) {
				a.SetMatcher(m)
			},
			config.WithInterval(c.Interval),
		)
		if err != nil {
			return err
		}
		defer w.Stop()
		// Keep the annotator on the watcher's copy.
		a.SetMatcher(w.Current())
	}

	return mcpserver.New(a,
		mcpserver.WithMetrics(observe.DefaultMetrics()),
		mcpserver.WithVersion(version),
	).Run(ctx)
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("cefrj %s\n", version)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
