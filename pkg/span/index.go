package span

import "sort"

// Index answers offset lookups over the intervals of a single blob with a
// binary search. Intervals produced by [MapIntervals] are sorted and disjoint,
// so Index.Locate returns exactly what [Locate] returns for them.
type Index struct {
	intervals []Interval
}

// NewIndex builds an Index for blob.
func NewIndex(blob string) *Index {
	intervals, _ := MapIntervals(blob)
	return &Index{intervals: intervals}
}

// Intervals returns the word intervals backing the index. The slice must not
// be modified.
func (x *Index) Intervals() []Interval {
	return x.intervals
}

// Len returns the number of word intervals.
func (x *Index) Len() int {
	return len(x.intervals)
}

// Locate returns the index of the interval containing offset, or [Unmapped].
func (x *Index) Locate(offset int) int {
	i := sort.Search(len(x.intervals), func(i int) bool {
		return x.intervals[i].End >= offset
	})
	if i < len(x.intervals) && x.intervals[i].Contains(offset) {
		return i
	}
	return Unmapped
}

// Words resolves a half-open match range [start, end) to a pair of word
// indices. Each side is resolved independently; either may be [Unmapped].
// The end offset is looked up as given, so a match ending right after the
// last character of a line maps onto that line's trailing newline.
func (x *Index) Words(start, end int) (startWord, endWord int) {
	return x.Locate(start), x.Locate(end)
}
