// Package annotate runs the per-sentence pipeline (tag, then match) and the
// directory batch that turns M2 correction files into annotated JSON
// documents.
package annotate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/syoon9/CEFRJ-annotator/internal/observe"
	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result is the annotation of a single sentence.
type Result struct {
	Sentence   string         `json:"input_text"`
	Tagged     string         `json:"tagged_sentence"`
	Annotation pattern.Result `json:"annotation"`
}

// SentenceError reports that one sentence could not be annotated. It never
// aborts a batch unless fail-fast is enabled.
type SentenceError struct {
	Sentence string
	Err      error
}

func (e *SentenceError) Error() string {
	return fmt.Sprintf("annotate: sentence %q: %v", e.Sentence, e.Err)
}

func (e *SentenceError) Unwrap() error { return e.Err }

// Option configures an [Annotator].
type Option func(*Annotator)

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Annotator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithTaggerName sets the tagger label used in metrics and logs.
func WithTaggerName(name string) Option {
	return func(a *Annotator) {
		a.taggerName = name
	}
}

// Annotator tags sentences and finds pattern matches in them. It is safe for
// concurrent use; the matcher can be swapped at runtime with
// [Annotator.SetMatcher].
type Annotator struct {
	tagger     tagger.Tagger
	taggerName string
	matcher    atomic.Pointer[pattern.Matcher]
	metrics    *observe.Metrics
}

// New returns an Annotator that tags with t and matches with m.
func New(t tagger.Tagger, m *pattern.Matcher, opts ...Option) *Annotator {
	a := &Annotator{
		tagger:     t,
		taggerName: "tagger",
		metrics:    observe.DefaultMetrics(),
	}
	a.matcher.Store(m)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Matcher returns the matcher currently in use.
func (a *Annotator) Matcher() *pattern.Matcher {
	return a.matcher.Load()
}

// SetMatcher replaces the matcher. Calls already in flight finish with the
// old one.
func (a *Annotator) SetMatcher(m *pattern.Matcher) {
	a.matcher.Store(m)
}

// Annotate tags sentence and matches every pattern against the tagged blob.
// Failures are returned as *[SentenceError].
func (a *Annotator) Annotate(ctx context.Context, sentence string) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "annotate.sentence")
	defer func() {
		a.metrics.RecordSentence(ctx, err)
		observe.EndSpan(span, err)
	}()

	start := time.Now()
	tagged, err := a.tagger.Tag(ctx, sentence)
	a.metrics.TaggerDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("tagger", a.taggerName)))
	if err != nil {
		a.metrics.RecordTaggerError(ctx, a.taggerName)
		return nil, &SentenceError{Sentence: sentence, Err: err}
	}

	found, err := a.matcher.Load().Find(sentence, tagged)
	if err != nil {
		return nil, &SentenceError{Sentence: sentence, Err: err}
	}
	for id, ms := range found {
		a.metrics.RecordMatches(ctx, id, len(ms))
	}
	span.SetAttributes(attribute.Int("matches", found.Count()))

	return &Result{Sentence: sentence, Tagged: tagged, Annotation: found}, nil
}
