// Package m2 reads correction files in the M2 block format.
//
// A sentence block starts with an "S" line holding the space-separated
// source tokens, followed by zero or more "A" annotation lines:
//
//	S My friend are nice .
//	A 2 3|||R:VERB:SVA|||is|||REQUIRED|||-NONE-|||0
//
// Blocks are separated by blank lines. Only annotations whose final field is
// [PrimaryAlternative] become edits; alternative proposals are ignored.
package m2

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/syoon9/CEFRJ-annotator/pkg/correction"
)

// PrimaryAlternative is the alternative-index selector of the canonical
// correction.
const PrimaryAlternative = "0"

// NoneReplacement marks an annotation that deletes its token range.
const NoneReplacement = "-NONE-"

const fieldSep = "|||"

// ErrMalformed is returned by [ParseLine] for annotation lines whose token
// indices cannot be read.
var ErrMalformed = errors.New("m2: malformed annotation")

var spanRe = regexp.MustCompile(`^A\s+(\d+)\s+(\d+)`)

// Annotation is one parsed "A" line.
type Annotation struct {
	Start       int
	End         int
	Type        string
	Replacement []string
	Alternative string
}

// Primary reports whether a is the canonical correction.
func (a Annotation) Primary() bool {
	return a.Alternative == PrimaryAlternative
}

// Edit converts a to a token-range edit.
func (a Annotation) Edit() correction.Edit {
	return correction.Edit{Start: a.Start, End: a.End, Replacement: a.Replacement}
}

// ParseLine parses a single annotation line. The line must start with "A"
// and carry at least the span, type and replacement fields.
func ParseLine(line string) (Annotation, error) {
	line = strings.TrimSpace(line)
	parts := strings.Split(line, fieldSep)
	if len(parts) < 3 {
		return Annotation{}, fmt.Errorf("%w: want at least 3 fields, got %d", ErrMalformed, len(parts))
	}
	m := spanRe.FindStringSubmatch(parts[0])
	if m == nil {
		return Annotation{}, fmt.Errorf("%w: bad span %q", ErrMalformed, parts[0])
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return Annotation{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return Annotation{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	a := Annotation{
		Start:       start,
		End:         end,
		Type:        strings.TrimSpace(parts[1]),
		Alternative: strings.TrimSpace(parts[len(parts)-1]),
	}
	// An empty field and -NONE- both delete the range and both leave
	// Replacement nil.
	if repl := strings.TrimSpace(parts[2]); repl != NoneReplacement {
		if words := strings.Fields(repl); len(words) > 0 {
			a.Replacement = words
		}
	}
	return a, nil
}

// Sentence is one block of a correction file.
type Sentence struct {
	Tokens []string
	Edits  []correction.Edit

	// Skipped counts primary annotation lines that could not be parsed.
	Skipped int
}

// Corrected applies the sentence's edits to its tokens.
func (s Sentence) Corrected() []string {
	return correction.Apply(s.Tokens, s.Edits)
}

// Parse returns the sentence blocks of blob in file order. The sequence can
// be ranged over any number of times; each pass re-reads blob.
//
// A blank line ends the current block. A block still open at end of input
// is yielded as well, and an "S" line that arrives before the previous block
// was closed yields that block first. Annotation lines outside a block are
// ignored.
func Parse(blob string) iter.Seq[Sentence] {
	return func(yield func(Sentence) bool) {
		var (
			cur  Sentence
			open bool
		)
		flush := func() bool {
			if !open {
				return true
			}
			open = false
			s := cur
			cur = Sentence{}
			return yield(s)
		}

		for raw := range strings.Lines(blob) {
			line := strings.TrimSpace(raw)
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, "S "):
				if !flush() {
					return
				}
				cur = Sentence{Tokens: strings.Fields(line[2:])}
				open = true
			case strings.HasPrefix(line, "A ") && open:
				parts := strings.Split(line, fieldSep)
				if strings.TrimSpace(parts[len(parts)-1]) != PrimaryAlternative {
					continue
				}
				a, err := ParseLine(line)
				if err != nil {
					cur.Skipped++
					continue
				}
				cur.Edits = append(cur.Edits, a.Edit())
			}
		}
		flush()
	}
}

// ParseReader reads all of r and parses it with [Parse].
func ParseReader(r io.Reader) (iter.Seq[Sentence], error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("m2: read: %w", err)
	}
	return Parse(string(b)), nil
}

// ParseFile reads the file at path and parses it with [Parse].
func ParseFile(path string) (iter.Seq[Sentence], error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("m2: read file: %w", err)
	}
	return Parse(string(b)), nil
}
