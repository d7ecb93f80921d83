package annotate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/syoon9/CEFRJ-annotator/internal/annostore"
	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
	"github.com/syoon9/CEFRJ-annotator/pkg/tagger/mock"
)

const sampleM2 = `S I is reading a book .
A 1 2|||R:VERB:TENSE|||was|||REQUIRED|||-NONE-|||0
A 1 2|||R:VERB:TENSE|||am|||REQUIRED|||-NONE-|||1

S She sing .
A 1 2|||R:VERB:SVA|||sings|||REQUIRED|||-NONE-|||0
A -1 -1|||noop|||-NONE-|||REQUIRED|||-NONE-|||0
`

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestBatch(t *testing.T, tg *mock.Tagger, cfg BatchConfig) *Batch {
	t.Helper()
	met, _ := newTestMetrics(t)
	return NewBatch(New(tg, testMatcher(t), WithMetrics(met)), cfg)
}

func TestBatch_Run(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "annotated")
	writeInput(t, in, "essay1.m2", sampleM2)
	writeInput(t, in, "notes.txt", "ignored")

	tg := &mock.Tagger{
		Responses: map[string]string{readingSentence: readingBlob},
		Errors:    map[string]error{"She sings .": errors.New("tagger crashed")},
	}
	b := newTestBatch(t, tg, BatchConfig{InputDir: in, OutputDir: out, Concurrency: 2, RunID: "run-1"})

	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Files) != 1 {
		t.Fatalf("files: got %d, want 1", len(report.Files))
	}
	fr := report.Files[0]
	if fr.Sentences != 2 || fr.Failed != 1 || fr.Skipped != 1 {
		t.Errorf("file report: got %+v", fr)
	}
	if fr.Output != filepath.Join(out, "essay1.json") {
		t.Errorf("output path: got %q", fr.Output)
	}

	var doc Document
	if err := ReadFile(fr.Output, &doc); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(doc.Sentences) != 2 {
		t.Fatalf("sentences: got %d, want 2", len(doc.Sentences))
	}

	first := doc.Sentences[0]
	wantFirst := SentenceRecord{
		Sentence: readingSentence,
		Tagged:   readingBlob,
		Annotation: pattern.Result{"A1.past_progressive": {{
			PatternID:      "A1.past_progressive",
			Explanation:    "past progressive",
			StartChar:      7,
			EndChar:        34,
			StartWordIndex: intPtr(1),
			EndWordIndex:   intPtr(2),
			ActualString:   strPtr("was reading"),
		}}},
		Source:       "I is reading a book .",
		EditDistance: 2,
	}
	if diff := cmp.Diff(wantFirst, first); diff != "" {
		t.Errorf("first sentence mismatch (-want +got):\n%s", diff)
	}

	second := doc.Sentences[1]
	if second.Sentence != "She sings ." || second.Source != "She sing ." {
		t.Errorf("second sentence: got %+v", second)
	}
	if !strings.Contains(second.Error, "tagger crashed") {
		t.Errorf("second sentence error: got %q", second.Error)
	}
}

func TestBatch_ConcurrencyBoundsTaggingsAcrossFiles(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), t.TempDir()
	for f := range 4 {
		var sb strings.Builder
		for i := range 6 {
			fmt.Fprintf(&sb, "S file %d sentence %d\n\n", f, i)
		}
		writeInput(t, in, fmt.Sprintf("f%d.m2", f), sb.String())
	}

	var inFlight, peak atomic.Int32
	tg := tagger.Func(func(ctx context.Context, _ string) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return "x_NN_x", nil
	})

	met, _ := newTestMetrics(t)
	const limit = 3
	b := NewBatch(New(tg, testMatcher(t), WithMetrics(met)), BatchConfig{InputDir: in, OutputDir: out, Concurrency: limit})
	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Files) != 4 || report.Failed() != 0 {
		t.Fatalf("report: %+v", report)
	}
	if got := peak.Load(); got > limit {
		t.Errorf("peak concurrent taggings = %d, want at most %d", got, limit)
	}
}

func TestBatch_OrderPreserved(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), t.TempDir()

	var sb strings.Builder
	const n = 40
	for i := range n {
		fmt.Fprintf(&sb, "S sentence number %d\n\n", i)
	}
	writeInput(t, in, "many.m2", sb.String())

	b := newTestBatch(t, &mock.Tagger{Default: "x_NN_x"}, BatchConfig{InputDir: in, OutputDir: out, Concurrency: 8})
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var doc Document
	if err := ReadFile(filepath.Join(out, "many.json"), &doc); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(doc.Sentences) != n {
		t.Fatalf("sentences: got %d, want %d", len(doc.Sentences), n)
	}
	for i, s := range doc.Sentences {
		if want := fmt.Sprintf("sentence number %d", i); s.Sentence != want {
			t.Errorf("sentence %d: got %q, want %q", i, s.Sentence, want)
		}
	}
}

func TestBatch_Compress(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "essay.m2", "S I was reading a book .\n")

	tg := &mock.Tagger{Default: readingBlob}
	b := newTestBatch(t, tg, BatchConfig{InputDir: in, OutputDir: out, Compress: true})
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	path := filepath.Join(out, "essay.json.xz")
	var doc Document
	if err := ReadFile(path, &doc); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(doc.Sentences) != 1 || doc.Sentences[0].Annotation.Count() != 1 {
		t.Errorf("decoded document: got %+v", doc)
	}
	if _, err := os.Stat(filepath.Join(out, "essay.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("plain output should not exist, stat err = %v", err)
	}
}

func TestBatch_FailFast(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "essay.m2", sampleM2)

	boom := errors.New("tagger down")
	b := newTestBatch(t, &mock.Tagger{Err: boom}, BatchConfig{InputDir: in, OutputDir: out, FailFast: true})

	_, err := b.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected tagger error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "essay.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("no output should be written on fail-fast, stat err = %v", err)
	}
}

func TestBatch_Store(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "essay1.m2", sampleM2)

	store := annostore.NewMemStore()
	tg := &mock.Tagger{
		Responses: map[string]string{readingSentence: readingBlob},
		Errors:    map[string]error{"She sings .": errors.New("tagger crashed")},
	}
	b := newTestBatch(t, tg, BatchConfig{InputDir: in, OutputDir: out, Store: store})
	if b.RunID() == "" {
		t.Fatal("RunID should default to a generated id")
	}
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctx := context.Background()
	rec, err := store.Get(ctx, b.RunID(), "essay1.m2", 0)
	if err != nil || rec == nil {
		t.Fatalf("Get: %+v, %v", rec, err)
	}
	if rec.SentenceHash != annostore.HashSentence(readingSentence) {
		t.Errorf("sentence hash: got %q", rec.SentenceHash)
	}
	failed, err := store.Get(ctx, b.RunID(), "essay1.m2", 1)
	if err != nil {
		t.Fatalf("Get failed sentence: %v", err)
	}
	if failed != nil {
		t.Error("failed sentences must not be stored")
	}

	list, err := store.ListByPattern(ctx, "A1.past_progressive")
	if err != nil {
		t.Fatalf("ListByPattern: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListByPattern: got %d records, want 1", len(list))
	}
}

func TestBatch_EmptyInputDir(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "out")
	b := newTestBatch(t, &mock.Tagger{}, BatchConfig{InputDir: t.TempDir(), OutputDir: out})

	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Files) != 0 {
		t.Errorf("files: got %d, want 0", len(report.Files))
	}
}

func TestBatch_Inputs(t *testing.T) {
	t.Parallel()
	in := t.TempDir()
	for _, name := range []string{"c.m2", "a.m2", "b.m2", "b.txt"} {
		writeInput(t, in, name, "")
	}
	b := newTestBatch(t, &mock.Tagger{}, BatchConfig{InputDir: in})

	got, err := b.Inputs()
	if err != nil {
		t.Fatalf("Inputs: %v", err)
	}
	want := []string{filepath.Join(in, "a.m2"), filepath.Join(in, "b.m2"), filepath.Join(in, "c.m2")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFile_Atomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	if err := WriteFile(path, Document{Sentences: []SentenceRecord{{Sentence: "a"}}}, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, Document{Sentences: []SentenceRecord{{Sentence: "b"}}}, false); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}

	var doc Document
	if err := ReadFile(path, &doc); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if doc.Sentences[0].Sentence != "b" {
		t.Errorf("got %q, want overwritten content", doc.Sentences[0].Sentence)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestWriteFile_MissingDir(t *testing.T) {
	t.Parallel()
	err := WriteFile(filepath.Join(t.TempDir(), "nope", "doc.json"), Document{}, false)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
