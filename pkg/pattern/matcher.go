package pattern

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/syoon9/CEFRJ-annotator/pkg/span"
)

const defaultMatchTimeout = 2 * time.Second

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithMatchTimeout bounds the time a single regex may spend on one blob.
// Backtracking patterns from hand-written tables can otherwise run away.
// Default: 2s. A non-positive value disables the limit.
func WithMatchTimeout(d time.Duration) Option {
	return func(m *Matcher) {
		m.timeout = d
	}
}

// WithLogger sets the logger used for per-match debug tracing. When unset,
// [slog.Default] is used.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = l
	}
}

type compiled struct {
	def Definition
	re  *regexp2.Regexp
}

// Matcher holds a compiled pattern set. It is read-only after [Compile] and
// safe for concurrent use across sentences.
type Matcher struct {
	patterns []compiled
	timeout  time.Duration
	logger   *slog.Logger
}

// Compile compiles every definition case-insensitively. All invalid
// expressions are reported together in a joined error.
func Compile(defs []Definition, opts ...Option) (*Matcher, error) {
	if len(defs) == 0 {
		return nil, ErrNoPatterns
	}
	m := &Matcher{timeout: defaultMatchTimeout}
	for _, o := range opts {
		o(m)
	}

	var errs []error
	m.patterns = make([]compiled, 0, len(defs))
	for _, d := range defs {
		re, err := regexp2.Compile(d.Regex, regexp2.IgnoreCase)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %q: %w", d.ID, err))
			continue
		}
		if m.timeout > 0 {
			re.MatchTimeout = m.timeout
		}
		m.patterns = append(m.patterns, compiled{def: d, re: re})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pattern: compile: %w", err)
	}
	return m, nil
}

// Definitions returns the compiled definitions in table order.
func (m *Matcher) Definitions() []Definition {
	out := make([]Definition, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.def
	}
	return out
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Find runs every pattern over tagged and maps each match back onto the
// whitespace-separated words of sentence.
//
// For each pattern all leftmost, non-overlapping matches are collected. The
// match start and exclusive end offsets are resolved to word indices
// independently. The matched text is the space-joined slice
// words[start:end+1] when both indices are present, in range, and ordered.
//
// The only error Find returns is a regex engine failure, in practice a match
// timeout; the result gathered so far is discarded in that case.
func (m *Matcher) Find(sentence, tagged string) (Result, error) {
	words := strings.Fields(sentence)
	idx := span.NewIndex(tagged)
	result := Result{}

	for _, p := range m.patterns {
		var matches []Match
		rm, err := p.re.FindStringMatch(tagged)
		for ; rm != nil && err == nil; rm, err = p.re.FindNextMatch(rm) {
			start := rm.Index
			end := rm.Index + rm.Length
			sw, ew := idx.Words(start, end)

			match := Match{
				PatternID:      p.def.ID,
				Explanation:    p.def.Explanation,
				StartChar:      start,
				EndChar:        end,
				StartWordIndex: wordIndex(sw),
				EndWordIndex:   wordIndex(ew),
			}
			match.ActualString = Slice(words, match.StartWordIndex, match.EndWordIndex)
			m.trace(match)
			matches = append(matches, match)
		}
		if err != nil {
			return nil, fmt.Errorf("pattern: match %q: %w", p.def.ID, err)
		}
		if len(matches) > 0 {
			result[p.def.ID] = matches
		}
	}
	return result, nil
}

// Slice returns words[start:end+1] joined with single spaces, or nil when
// either index is missing, start is negative, end is past the last word, or
// start is after end.
func Slice(words []string, start, end *int) *string {
	if start == nil || end == nil {
		return nil
	}
	s, e := *start, *end
	if s < 0 || e >= len(words) || s > e {
		return nil
	}
	joined := strings.Join(words[s:e+1], " ")
	return &joined
}

func wordIndex(i int) *int {
	if i == span.Unmapped {
		return nil
	}
	return &i
}

func (m *Matcher) trace(match Match) {
	l := m.logger
	if l == nil {
		l = slog.Default()
	}
	actual := "<none>"
	if match.ActualString != nil {
		actual = *match.ActualString
	}
	l.Debug("pattern matched",
		"pattern_id", match.PatternID,
		"start_char", match.StartChar,
		"end_char", match.EndChar,
		"actual_string", actual,
	)
}
