package pattern

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const scenarioBlob = "I_PP_I\nwas_VBD_be\nreading_VBG_read\na_DT_a book_NN_book\n._SENT_.\n"

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func mustCompile(t *testing.T, defs ...Definition) *Matcher {
	t.Helper()
	m, err := Compile(defs)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return m
}

func TestFind_PastProgressive(t *testing.T) {
	m := mustCompile(t, Definition{ID: "42", Regex: `was\S*\s+reading\S*`, Explanation: "past progressive"})

	got, err := m.Find("I was reading a book.", scenarioBlob)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := Result{"42": {{
		PatternID:      "42",
		Explanation:    "past progressive",
		StartChar:      7,
		EndChar:        34,
		StartWordIndex: intPtr(1),
		EndWordIndex:   intPtr(2),
		ActualString:   strPtr("was reading"),
	}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Find mismatch (-want +got):\n%s", diff)
	}
}

func TestFind_StartInMarkup(t *testing.T) {
	blob := "<file>\n<NC>\nI_PP_I\n</NC>\n<VC>\nwas_VBD_be\nreading_VBG_read\n</VC>\n</file>"
	m := mustCompile(t, Definition{ID: "np", Regex: `<NC>\s+I_\S+`})

	got, err := m.Find("I was reading", blob)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	matches := got["np"]
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	match := matches[0]
	if match.StartWordIndex != nil {
		t.Errorf("StartWordIndex = %d, want nil", *match.StartWordIndex)
	}
	if match.EndWordIndex == nil || *match.EndWordIndex != 0 {
		t.Errorf("EndWordIndex = %v, want 0", match.EndWordIndex)
	}
	if match.ActualString != nil {
		t.Errorf("ActualString = %q, want nil", *match.ActualString)
	}
}

func TestFind_MultipleMatchesInOrder(t *testing.T) {
	m := mustCompile(t, Definition{ID: "det", Regex: `\w+_(?:PP|DT)_\w+`})

	got, err := m.Find("I was reading a book.", scenarioBlob)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	var actual []string
	for _, match := range got["det"] {
		if match.ActualString == nil {
			t.Fatalf("match %+v has no actual string", match)
		}
		actual = append(actual, *match.ActualString)
	}
	if diff := cmp.Diff([]string{"I", "a"}, actual); diff != "" {
		t.Errorf("actual strings mismatch (-want +got):\n%s", diff)
	}
}

func TestFind_OmitsPatternsWithoutMatches(t *testing.T) {
	m := mustCompile(t,
		Definition{ID: "hit", Regex: `book_NN`},
		Definition{ID: "miss", Regex: `_MD_`},
	)

	got, err := m.Find("I was reading a book.", scenarioBlob)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if _, ok := got["miss"]; ok {
		t.Error("pattern without matches is present in result")
	}
	if len(got["hit"]) != 1 {
		t.Errorf("len(hit) = %d, want 1", len(got["hit"]))
	}
	if got.Count() != 1 {
		t.Errorf("Count = %d, want 1", got.Count())
	}
}

func TestFind_CaseInsensitive(t *testing.T) {
	m := mustCompile(t, Definition{ID: "p", Regex: `WAS_vbd_BE`})

	got, err := m.Find("I was reading a book.", scenarioBlob)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got["p"]) != 1 {
		t.Fatalf("case-insensitive match not found: %v", got)
	}
}

func TestFind_MatchAtEndOfBlob(t *testing.T) {
	m := mustCompile(t, Definition{ID: "past", Regex: `ran_VBD_run`})

	got, err := m.Find("I ran", "I_PP_I\nran_VBD_run")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	match := got["past"][0]
	if match.ActualString == nil || *match.ActualString != "ran" {
		t.Errorf("ActualString = %v, want ran", match.ActualString)
	}
}

func TestFind_Idempotent(t *testing.T) {
	m := mustCompile(t,
		Definition{ID: "a", Regex: `was\S*\s+reading\S*`},
		Definition{ID: "b", Regex: `\w+_(?:PP|DT)_\w+`},
	)

	first, err := m.Find("I was reading a book.", scenarioBlob)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	second, err := m.Find("I was reading a book.", scenarioBlob)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated Find differs (-first +second):\n%s", diff)
	}
}

func TestCompile_Errors(t *testing.T) {
	if _, err := Compile(nil); !errors.Is(err, ErrNoPatterns) {
		t.Errorf("Compile(nil) err = %v, want ErrNoPatterns", err)
	}

	_, err := Compile([]Definition{
		{ID: "ok", Regex: `a+`},
		{ID: "bad1", Regex: `(unclosed`},
		{ID: "bad2", Regex: `[z-a]`},
	})
	if err == nil {
		t.Fatal("expected compile error")
	}
	for _, id := range []string{"bad1", "bad2"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("error %q does not mention %s", err, id)
		}
	}
	if strings.Contains(err.Error(), `"ok"`) {
		t.Errorf("error %q mentions a valid pattern", err)
	}
}

func TestMatcher_Definitions(t *testing.T) {
	defs := []Definition{
		{ID: "1", Regex: `a`, Explanation: "first"},
		{ID: "2", Regex: `b`, Explanation: "second"},
	}
	m := mustCompile(t, defs...)
	if diff := cmp.Diff(defs, m.Definitions()); diff != "" {
		t.Errorf("Definitions mismatch (-want +got):\n%s", diff)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestSlice(t *testing.T) {
	words := []string{"I", "was", "reading", "a", "book."}
	tests := []struct {
		name       string
		start, end *int
		want       *string
	}{
		{"single word", intPtr(0), intPtr(0), strPtr("I")},
		{"range", intPtr(1), intPtr(2), strPtr("was reading")},
		{"whole sentence", intPtr(0), intPtr(4), strPtr("I was reading a book.")},
		{"missing start", nil, intPtr(2), nil},
		{"missing end", intPtr(1), nil, nil},
		{"negative start", intPtr(-1), intPtr(2), nil},
		{"end past last word", intPtr(3), intPtr(5), nil},
		{"inverted", intPtr(3), intPtr(1), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slice(words, tt.start, tt.end)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Slice mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
