package tagger

import (
	"fmt"
	"regexp"
	"strings"
)

var preprocessReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"`", "'",
	"：", ": ",
	"…", " ...",
	"\u3000", " ",
	"\t", " ",
	"～", "...",
	"~", "...",
)

// Preprocess normalises typographic punctuation in a sentence before it is
// handed to a tagger: curly quotes become ASCII quotes, full-width colon and
// ellipsis are spelled out, full-width spaces and tabs become spaces, and
// wave dashes become "...".
func Preprocess(sentence string) string {
	return preprocessReplacer.Replace(sentence)
}

var (
	corpusSuffixRe = regexp.MustCompile(`-[acdijmnprvx]$`)
	xmlEscaper     = strings.NewReplacer("&", "&amp;", ">", "&gt;", "<", "&lt;")
)

// XMLize converts one line of raw tagger output into a line of the annotated
// blob. A leading byte order mark is dropped and the empty element <g/>
// becomes the empty string. Any other line starting with '<' is markup and is
// returned unchanged. Token lines lose a trailing corpus suffix such as "-n",
// get '&', '>' and '<' escaped, and have their tab separators replaced by
// underscores.
func XMLize(line string) string {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimPrefix(line, "\ufeff")
	if line == "<g/>" {
		return ""
	}
	if strings.HasPrefix(line, "<") {
		return line
	}
	line = corpusSuffixRe.ReplaceAllString(line, "")
	line = xmlEscaper.Replace(line)
	return strings.ReplaceAll(line, "\t", "_")
}

// MinColumns is the number of tab-separated columns a raw tagger line needs
// (token, tag, lemma) to be kept.
const MinColumns = 3

// Normalize turns raw tab-separated tagger output into an annotated blob.
// Lines with fewer than [MinColumns] columns are dropped, the rest are passed
// through [XMLize] and joined with newlines. If nothing survives, Normalize
// returns [ErrNoOutput].
func Normalize(raw string) (string, error) {
	var kept []string
	for line := range strings.Lines(raw) {
		line = strings.TrimRight(line, "\r\n")
		if len(strings.Split(line, "\t")) < MinColumns {
			continue
		}
		if x := XMLize(line); x != "" {
			kept = append(kept, x)
		}
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("tagger: normalize: %w", ErrNoOutput)
	}
	return strings.Join(kept, "\n"), nil
}
