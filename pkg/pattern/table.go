package pattern

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a pattern table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatYAML Format = "yaml"
)

// Default column names of a delimited pattern table.
const (
	DefaultIDColumn          = "pattern_id"
	DefaultRegexColumn       = "regex"
	DefaultExplanationColumn = "grammatical_item"
)

// TableOptions selects the header columns of a delimited table. Empty fields
// fall back to the Default*Column constants. YAML tables ignore them.
type TableOptions struct {
	IDColumn          string
	RegexColumn       string
	ExplanationColumn string

	// Logger receives warnings about skipped rows. Nil means [slog.Default].
	Logger *slog.Logger
}

func (o TableOptions) withDefaults() TableOptions {
	if o.IDColumn == "" {
		o.IDColumn = DefaultIDColumn
	}
	if o.RegexColumn == "" {
		o.RegexColumn = DefaultRegexColumn
	}
	if o.ExplanationColumn == "" {
		o.ExplanationColumn = DefaultExplanationColumn
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// FormatFromPath infers the table format from the file extension. Unknown
// extensions are read as CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatCSV
	}
}

// LoadTable reads the pattern table at path. A missing or unreadable file is
// returned as an error; callers treat it as fatal for the run.
func LoadTable(path string, opts TableOptions) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pattern: open table: %w", err)
	}
	defer f.Close()

	defs, err := LoadTableFromReader(f, FormatFromPath(path), opts)
	if err != nil {
		return nil, fmt.Errorf("pattern: load %q: %w", path, err)
	}
	return defs, nil
}

// LoadTableFromReader decodes a pattern table from r. Rows with an empty
// regex are skipped with a warning. Duplicate IDs and an empty result are
// errors.
func LoadTableFromReader(r io.Reader, format Format, opts TableOptions) ([]Definition, error) {
	opts = opts.withDefaults()

	var (
		defs []Definition
		err  error
	)
	switch format {
	case FormatYAML:
		defs, err = decodeYAML(r)
	case FormatTSV:
		defs, err = decodeDelimited(r, '\t', opts)
	case FormatCSV, "":
		defs, err = decodeDelimited(r, ',', opts)
	default:
		return nil, fmt.Errorf("pattern: unknown table format %q", format)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(defs))
	out := defs[:0]
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("pattern: row %d: empty pattern id", i+1)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("pattern: duplicate pattern id %q", d.ID)
		}
		seen[d.ID] = true
		if strings.TrimSpace(d.Regex) == "" {
			opts.Logger.Warn("pattern table: skipping row with empty regex", "pattern_id", d.ID)
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, ErrNoPatterns
	}
	return out, nil
}

func decodeDelimited(r io.Reader, comma rune, opts TableOptions) ([]Definition, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	if comma == '\t' {
		cr.LazyQuotes = true
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoPatterns
	}
	if err != nil {
		return nil, fmt.Errorf("pattern: read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		col[name] = i
	}
	idCol, ok1 := col[opts.IDColumn]
	reCol, ok2 := col[opts.RegexColumn]
	exCol, ok3 := col[opts.ExplanationColumn]
	var missing []string
	for name, ok := range map[string]bool{opts.IDColumn: ok1, opts.RegexColumn: ok2, opts.ExplanationColumn: ok3} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("pattern: header is missing column(s) %s", strings.Join(missing, ", "))
	}

	var defs []Definition
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pattern: read row: %w", err)
		}
		if isBlankRecord(rec) {
			continue
		}
		defs = append(defs, Definition{
			ID:          strings.TrimSpace(field(rec, idCol)),
			Regex:       field(rec, reCol),
			Explanation: strings.TrimSpace(field(rec, exCol)),
		})
	}
	return defs, nil
}

type yamlTable struct {
	Patterns []Definition `yaml:"patterns"`
}

func decodeYAML(r io.Reader) ([]Definition, error) {
	var t yamlTable
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoPatterns
		}
		return nil, fmt.Errorf("pattern: decode yaml: %w", err)
	}
	return t.Patterns, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func isBlankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
