package correction

import (
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Summary describes one corrected sentence.
type Summary struct {
	Source    string `json:"source_sentence"`
	Corrected string `json:"corrected_sentence"`

	// EditDistance is the character-level Levenshtein distance between
	// Source and Corrected.
	EditDistance int `json:"edit_distance"`

	// Similarity is the Jaro-Winkler similarity of the two sentences in [0, 1].
	Similarity float64 `json:"similarity"`
}

// Summarize applies edits to tokens and compares the space-joined result with
// the space-joined source.
func Summarize(tokens []string, edits []Edit) Summary {
	source := strings.Join(tokens, " ")
	corrected := strings.Join(Apply(tokens, edits), " ")
	s := Summary{
		Source:    source,
		Corrected: corrected,
	}
	if source == corrected {
		s.Similarity = 1
		return s
	}
	s.EditDistance = matchr.Levenshtein(source, corrected)
	s.Similarity = matchr.JaroWinkler(source, corrected, false)
	return s
}

// WordDiff renders a token-level diff of before and after. Removed runs are
// written as [-old words-] and inserted runs as {+new words+}; unchanged
// tokens are written as is.
func WordDiff(before, after []string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(tokenLines(before), tokenLines(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var parts []string
	for _, d := range diffs {
		words := strings.Fields(d.Text)
		if len(words) == 0 {
			continue
		}
		run := strings.Join(words, " ")
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			parts = append(parts, "[-"+run+"-]")
		case diffmatchpatch.DiffInsert:
			parts = append(parts, "{+"+run+"+}")
		case diffmatchpatch.DiffEqual:
			parts = append(parts, run)
		}
	}
	return strings.Join(parts, " ")
}

// tokenLines puts one token per line so the line-mode diff compares tokens.
func tokenLines(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, "\n") + "\n"
}
