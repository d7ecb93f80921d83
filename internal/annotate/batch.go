package annotate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/syoon9/CEFRJ-annotator/internal/annostore"
	"github.com/syoon9/CEFRJ-annotator/internal/observe"
	"github.com/syoon9/CEFRJ-annotator/pkg/correction"
	"github.com/syoon9/CEFRJ-annotator/pkg/m2"
	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// SentenceRecord is one entry of an annotated document. Sentence is the
// corrected sentence; Source is the learner's original.
type SentenceRecord struct {
	Sentence     string         `json:"original_sentence"`
	Tagged       string         `json:"tagged_sentence"`
	Annotation   pattern.Result `json:"CEFRJ_annotation"`
	Source       string         `json:"source_sentence"`
	EditDistance int            `json:"edit_distance"`
	Error        string         `json:"error,omitempty"`
}

// Document is the content of one output file, with sentences in input order.
type Document struct {
	Sentences []SentenceRecord `json:"sentences"`
}

// FileReport summarises one processed correction file.
type FileReport struct {
	Input     string
	Output    string
	Sentences int
	Failed    int
	Skipped   int
	Err       error
}

// Report summarises a batch run.
type Report struct {
	RunID string
	Files []FileReport
}

// Failed returns the number of sentences that could not be annotated.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		n += f.Failed
	}
	return n
}

// BatchConfig controls a [Batch].
type BatchConfig struct {
	InputDir  string
	OutputDir string

	// Glob selects input files inside InputDir. Defaults to "*.m2".
	Glob string

	// Concurrency bounds the taggings in flight across the whole run, no
	// matter how many files are open. Values below 1 mean 1.
	Concurrency int

	// FailFast aborts the run on the first sentence or file failure.
	FailFast bool

	// Compress writes .json.xz instead of .json.
	Compress bool

	// Store, when set, receives every successfully annotated sentence.
	Store annostore.Store

	// RunID tags stored records. A random UUID is used when empty.
	RunID string
}

// Batch annotates every correction file of a directory.
type Batch struct {
	a        *Annotator
	cfg      BatchConfig
	metrics  *observe.Metrics
	taggings *semaphore.Weighted
}

// NewBatch returns a Batch that annotates with a.
func NewBatch(a *Annotator, cfg BatchConfig) *Batch {
	if cfg.Glob == "" {
		cfg.Glob = "*.m2"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Batch{
		a:        a,
		cfg:      cfg,
		metrics:  a.metrics,
		taggings: semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// RunID returns the identifier stamped on stored records.
func (b *Batch) RunID() string { return b.cfg.RunID }

// Inputs returns the input files in sorted order.
func (b *Batch) Inputs() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(b.cfg.InputDir, b.cfg.Glob))
	if err != nil {
		return nil, fmt.Errorf("annotate: glob %q: %w", b.cfg.Glob, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// OutputPath returns the output file for input.
func (b *Batch) OutputPath(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	ext := ExtJSON
	if b.cfg.Compress {
		ext = ExtJSONXZ
	}
	return filepath.Join(b.cfg.OutputDir, stem+ext)
}

// Run processes every input file and writes one document per file. Sentence
// failures are recorded in the documents; the returned error is non-nil only
// for setup failures, cancellation, or any failure when FailFast is set.
func (b *Batch) Run(ctx context.Context) (*Report, error) {
	log := observe.Logger(ctx).With("run_id", b.cfg.RunID)

	inputs, err := b.Inputs()
	if err != nil {
		return nil, err
	}
	report := &Report{RunID: b.cfg.RunID, Files: make([]FileReport, len(inputs))}
	if len(inputs) == 0 {
		log.Warn("no input files", "dir", b.cfg.InputDir, "glob", b.cfg.Glob)
		return report, nil
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("annotate: create output dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			fr := b.runFile(gctx, in)
			report.Files[i] = fr
			if fr.Err != nil {
				if b.cfg.FailFast {
					return fr.Err
				}
				log.Error("file failed", "file", in, "err", fr.Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	log.Info("batch complete", "files", len(inputs), "failed_sentences", report.Failed())
	return report, nil
}

func (b *Batch) runFile(ctx context.Context, in string) (fr FileReport) {
	fr = FileReport{Input: in, Output: b.OutputPath(in)}

	doc, skipped, err := b.ProcessFile(ctx, in)
	fr.Skipped = skipped
	if doc != nil {
		fr.Sentences = len(doc.Sentences)
		for _, s := range doc.Sentences {
			if s.Error != "" {
				fr.Failed++
			}
		}
	}
	if err != nil {
		fr.Err = err
		return fr
	}
	if err := WriteFile(fr.Output, doc, b.cfg.Compress); err != nil {
		fr.Err = err
		return fr
	}
	observe.Logger(ctx).Info("file annotated",
		"file", in,
		"output", fr.Output,
		"sentences", fr.Sentences,
		"failed", fr.Failed,
		"skipped_annotations", fr.Skipped,
	)
	return fr
}

// ProcessFile parses the correction file at path, corrects and annotates
// every sentence and returns the document along with the number of
// malformed annotation lines that were skipped. Sentences are annotated
// concurrently; the document keeps file order.
func (b *Batch) ProcessFile(ctx context.Context, path string) (doc *Document, skipped int, err error) {
	ctx, span := observe.StartSpan(ctx, "annotate.file")
	span.SetAttributes(attribute.String("file", path))
	b.metrics.ActiveFiles.Add(ctx, 1)
	defer func() {
		b.metrics.ActiveFiles.Add(ctx, -1)
		b.metrics.RecordFile(ctx, err)
		observe.EndSpan(span, err)
	}()

	seq, err := m2.ParseFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("annotate: %w", err)
	}
	var sentences []m2.Sentence
	for s := range seq {
		sentences = append(sentences, s)
		skipped += s.Skipped
	}
	if skipped > 0 {
		b.metrics.SkippedAnnotations.Add(ctx, int64(skipped))
	}

	records := make([]SentenceRecord, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, s := range sentences {
		g.Go(func() error {
			rec, err := b.processSentence(gctx, path, i, s)
			records[i] = rec
			if err != nil && b.cfg.FailFast {
				return err
			}
			return nil
		})
	}
	err = g.Wait()
	doc = &Document{Sentences: records}
	if err != nil {
		return doc, skipped, err
	}
	return doc, skipped, ctx.Err()
}

func (b *Batch) processSentence(ctx context.Context, path string, i int, s m2.Sentence) (SentenceRecord, error) {
	sum := correction.Summarize(s.Tokens, s.Edits)
	rec := SentenceRecord{
		Sentence:     sum.Corrected,
		Source:       sum.Source,
		EditDistance: sum.EditDistance,
	}

	res, err := b.annotate(ctx, sum.Corrected)
	if err != nil {
		rec.Error = err.Error()
		observe.Logger(ctx).Warn("sentence failed", "file", path, "sentence", i, "err", err)
		return rec, err
	}
	rec.Tagged = res.Tagged
	rec.Annotation = res.Annotation

	if b.cfg.Store != nil {
		stored := &annostore.Record{
			RunID:    b.cfg.RunID,
			File:     filepath.Base(path),
			Index:    i,
			Sentence: sum.Corrected,
			Tagged:   res.Tagged,
			Matches:  res.Annotation,
		}
		if err := b.cfg.Store.Put(ctx, stored); err != nil {
			rec.Error = err.Error()
			observe.Logger(ctx).Warn("store failed", "file", path, "sentence", i, "err", err)
			return rec, err
		}
	}
	return rec, nil
}

// annotate runs one tagging under the run-wide concurrency limit.
func (b *Batch) annotate(ctx context.Context, sentence string) (*Result, error) {
	if err := b.taggings.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.taggings.Release(1)
	return b.a.Annotate(ctx, sentence)
}
