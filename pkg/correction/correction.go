// Package correction applies token-range replacement edits to a tokenized
// sentence.
//
// Edits are expressed against the original token sequence. [Apply] processes
// them from the highest start index down, so every edit is still valid
// against the working copy when it is applied and no offset ever needs to be
// shifted.
package correction

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Edit replaces the half-open token range [Start, End) of the original
// sentence with Replacement, which may be empty.
type Edit struct {
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Replacement []string `json:"replacement"`
}

func (e Edit) String() string {
	return fmt.Sprintf("[%d,%d)->%q", e.Start, e.End, strings.Join(e.Replacement, " "))
}

// SortEdits returns a copy of edits in application order: descending Start,
// then descending End for equal starts, then input order.
func SortEdits(edits []Edit) []Edit {
	out := slices.Clone(edits)
	slices.SortStableFunc(out, func(a, b Edit) int {
		return cmp.Or(cmp.Compare(b.Start, a.Start), cmp.Compare(b.End, a.End))
	})
	return out
}

// Apply returns the corrected token sequence. tokens is not modified.
//
// Edits must be pairwise non-overlapping for the result to be meaningful;
// use [Validate] to check. Out-of-range bounds are clamped to the working
// copy the way a slice expression with saturating bounds would be, so Apply
// never panics on malformed input.
func Apply(tokens []string, edits []Edit) []string {
	work := slices.Clone(tokens)
	for _, e := range SortEdits(edits) {
		start := clamp(e.Start, len(work))
		end := max(clamp(e.End, len(work)), start)
		work = slices.Replace(work, start, end, e.Replacement...)
	}
	if work == nil {
		work = []string{}
	}
	return work
}

// clamp bounds i to [0, n], counting negative indices from the end.
func clamp(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			return 0
		}
	}
	return min(i, n)
}

// ErrEditRange reports an edit whose bounds do not fit the token sequence.
var ErrEditRange = errors.New("correction: edit out of range")

// ErrEditOverlap reports two edits with intersecting ranges.
var ErrEditOverlap = errors.New("correction: overlapping edits")

// Validate checks every edit against the token count n and against every
// other edit. Insertions (Start == End) overlap only an edit that strictly
// contains their position. All problems are returned joined.
func Validate(n int, edits []Edit) error {
	var errs []error
	for _, e := range edits {
		if e.Start < 0 || e.Start > e.End || e.End > n {
			errs = append(errs, fmt.Errorf("%w: %s with %d tokens", ErrEditRange, e, n))
		}
	}
	for i := range edits {
		for j := i + 1; j < len(edits); j++ {
			if overlaps(edits[i], edits[j]) {
				errs = append(errs, fmt.Errorf("%w: %s and %s", ErrEditOverlap, edits[i], edits[j]))
			}
		}
	}
	return errors.Join(errs...)
}

// overlaps reports whether a and b touch a common token. An insertion
// conflicts only with a replacement that strictly contains its position.
func overlaps(a, b Edit) bool {
	switch {
	case a.Start == a.End && b.Start == b.End:
		return false
	case a.Start == a.End:
		return b.Start < a.Start && a.Start < b.End
	case b.Start == b.End:
		return a.Start < b.Start && b.Start < a.End
	default:
		return a.Start < b.End && b.Start < a.End
	}
}
