// Package span maps character offsets in a tagged sentence blob back to word
// positions.
//
// A tagged blob is the line-per-token output of a part-of-speech tagger,
// optionally interleaved with structural markup lines such as "<file>" or
// "<NC>". [MapIntervals] walks the blob line by line and records, for every
// surviving (non-markup, non-empty) line, the character span it occupies in
// the blob. [Locate] and [Index.Locate] then translate a character offset
// into the index of the surviving line that contains it, or [Unmapped].
//
// All offsets are counted in runes (Unicode code points), not bytes, so they
// line up with the match positions reported by the pattern engine.
package span

import (
	"strings"
	"unicode/utf8"
)

// Unmapped is returned by [Locate] when an offset does not fall inside any
// word interval: inside a stripped markup line, on a blank line, or outside
// the blob entirely. It is never a valid word index.
const Unmapped = -1

// Interval is the inclusive rune range [Start, End] that one surviving line
// occupies in the blob. End is the offset of the line terminator that follows
// the line, so an exclusive match end that stops right after the last
// character of a line still resolves to that line.
type Interval struct {
	Start int
	End   int
}

// Contains reports whether offset lies within the interval (both ends inclusive).
func (iv Interval) Contains(offset int) bool {
	return iv.Start <= offset && offset <= iv.End
}

// IsMarkupLine reports whether line consists solely of a structural tag: it
// is non-empty, starts with '<' and ends with '>'. This is a whole-line check,
// not an XML parse; "<tag>word</tag>" on one line counts as markup too.
func IsMarkupLine(line string) bool {
	return len(line) > 0 && line[0] == '<' && line[len(line)-1] == '>'
}

// MapIntervals splits blob on '\n' and returns the interval of every line
// that is neither empty nor markup, in line order, together with the
// surviving line contents.
//
// The cursor advances by the line length plus one for the newline for every
// line, blank lines included, so intervals always agree with the real rune
// offsets of the blob.
func MapIntervals(blob string) ([]Interval, []string) {
	var (
		intervals []Interval
		kept      []string
		pos       int
	)
	for _, line := range strings.Split(blob, "\n") {
		if line == "" {
			pos++
			continue
		}
		last := pos + utf8.RuneCountInString(line)
		if !IsMarkupLine(line) {
			intervals = append(intervals, Interval{Start: pos, End: last})
			kept = append(kept, line)
		}
		pos = last + 1
	}
	return intervals, kept
}

// Locate returns the index of the first interval containing offset, or
// [Unmapped]. It scans linearly and accepts any offset, including negative
// ones.
func Locate(offset int, intervals []Interval) int {
	for i, iv := range intervals {
		if iv.Contains(offset) {
			return i
		}
	}
	return Unmapped
}
