// Package pattern finds grammatical-construction patterns in tagged learner
// sentences and reports every occurrence as a range of words in the original,
// untagged sentence.
//
// A [Definition] pairs an opaque identifier with a regular expression written
// against the tagger's line-per-token output ("was_VBD_be\nreading_VBG_read").
// [Compile] turns a set of definitions into a [Matcher]; [Matcher.Find] runs
// every pattern over one tagged blob and resolves each match to word indices
// through [span.Index].
//
// Regular expressions use the .NET/PCRE-compatible dialect of
// github.com/dlclark/regexp2 (lookaround and backreferences are available)
// and are always matched case-insensitively.
package pattern

import "errors"

// ErrNoPatterns is returned by [Compile] when the definition set is empty.
var ErrNoPatterns = errors.New("pattern: no pattern definitions")

// Definition is one row of the pattern table. It is immutable once loaded.
type Definition struct {
	// ID is the stable pattern identifier. It is treated as an opaque key.
	ID string `json:"pattern_id" yaml:"id"`

	// Regex is the pattern source, matched against the tagged blob.
	Regex string `json:"regex" yaml:"regex"`

	// Explanation is the human-readable label of the grammatical item.
	Explanation string `json:"explanation" yaml:"explanation"`
}

// Match is a single occurrence of a pattern. A fresh Match is built for every
// occurrence and shares nothing with the [Definition] it came from.
type Match struct {
	PatternID   string `json:"pattern_id"`
	Explanation string `json:"explanation,omitempty"`

	// StartChar and EndChar are the rune offsets of the match in the tagged
	// blob; EndChar is exclusive.
	StartChar int `json:"start_char"`
	EndChar   int `json:"end_char"`

	// StartWordIndex and EndWordIndex are nil when the corresponding offset
	// falls inside stripped markup or outside every word.
	StartWordIndex *int `json:"start_word_index"`
	EndWordIndex   *int `json:"end_word_index"`

	// ActualString is the matched slice of the original sentence, or nil when
	// the word indices do not describe a valid range.
	ActualString *string `json:"actual_string"`
}

// Result maps a pattern ID to its matches in match order. Patterns without
// matches are absent.
type Result map[string][]Match

// Count returns the total number of matches across all patterns.
func (r Result) Count() int {
	n := 0
	for _, ms := range r {
		n += len(ms)
	}
	return n
}
