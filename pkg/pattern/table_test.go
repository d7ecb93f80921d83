package pattern

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadTableFromReader_CSV(t *testing.T) {
	in := "\ufeffpattern_id,grammatical_item,regex\n" +
		"1,past progressive,\"was\\S*\\s+\\w+ing\"\n" +
		"2,empty,\n" +
		"\n" +
		"3,article,\"a_DT, an_DT\"\n"

	got, err := LoadTableFromReader(strings.NewReader(in), FormatCSV, TableOptions{})
	if err != nil {
		t.Fatalf("LoadTableFromReader: %v", err)
	}
	want := []Definition{
		{ID: "1", Regex: `was\S*\s+\w+ing`, Explanation: "past progressive"},
		{ID: "3", Regex: "a_DT, an_DT", Explanation: "article"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTableFromReader_TSVCustomColumns(t *testing.T) {
	in := "id\tpattern\tlabel\nA1\tbook_NN\tnoun\n"

	got, err := LoadTableFromReader(strings.NewReader(in), FormatTSV, TableOptions{
		IDColumn:          "id",
		RegexColumn:       "pattern",
		ExplanationColumn: "label",
	})
	if err != nil {
		t.Fatalf("LoadTableFromReader: %v", err)
	}
	want := []Definition{{ID: "A1", Regex: "book_NN", Explanation: "noun"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTableFromReader_YAML(t *testing.T) {
	in := `
patterns:
  - id: "10"
    regex: 'was\S*\s+reading'
    explanation: past progressive
  - id: "11"
    regex: ""
    explanation: skipped
`
	got, err := LoadTableFromReader(strings.NewReader(in), FormatYAML, TableOptions{})
	if err != nil {
		t.Fatalf("LoadTableFromReader: %v", err)
	}
	want := []Definition{{ID: "10", Regex: `was\S*\s+reading`, Explanation: "past progressive"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTableFromReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		in      string
		wantErr string
		is      error
	}{
		{"empty csv", FormatCSV, "", "", ErrNoPatterns},
		{"header only", FormatCSV, "pattern_id,regex,grammatical_item\n", "", ErrNoPatterns},
		{"missing column", FormatCSV, "pattern_id,regex\n1,a\n", "grammatical_item", nil},
		{"duplicate id", FormatCSV, "pattern_id,regex,grammatical_item\n1,a,x\n1,b,y\n", "duplicate", nil},
		{"empty id", FormatCSV, "pattern_id,regex,grammatical_item\n,a,x\n", "empty pattern id", nil},
		{"unknown yaml field", FormatYAML, "patterns:\n  - id: x\n    regx: a\n", "regx", nil},
		{"unknown format", Format("xlsx"), "", "unknown table format", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTableFromReader(strings.NewReader(tt.in), tt.format, TableOptions{})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTable_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.tsv")
	if err := os.WriteFile(path, []byte("pattern_id\tregex\tgrammatical_item\n7\tbook_NN\tnoun\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadTable(path, TableOptions{})
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if len(got) != 1 || got[0].ID != "7" {
		t.Errorf("got %+v, want one definition with id 7", got)
	}

	if _, err := LoadTable(filepath.Join(dir, "missing.csv"), TableOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadTable(missing) err = %v, want ErrNotExist", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"p.csv":        FormatCSV,
		"p.CSV":        FormatCSV,
		"p.tsv":        FormatTSV,
		"p.yaml":       FormatYAML,
		"p.yml":        FormatYAML,
		"no_extension": FormatCSV,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
