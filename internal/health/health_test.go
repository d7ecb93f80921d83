package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/syoon9/CEFRJ-annotator/internal/resilience"
)

func readyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("boom") }

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		want       result
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			want:       result{Status: "ok", Checks: map[string]string{}},
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "a", Check: ok}, {Name: "b", Check: ok}},
			wantStatus: http.StatusOK,
			want:       result{Status: "ok", Checks: map[string]string{"a": "ok", "b": "ok"}},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{Name: "a", Check: ok}, {Name: "b", Check: fail}},
			wantStatus: http.StatusServiceUnavailable,
			want:       result{Status: "fail", Checks: map[string]string{"a": "ok", "b": "fail: boom"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tt.checkers...))
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if body.Checks == nil {
				body.Checks = map[string]string{}
			}
			if diff := cmp.Diff(tt.want, body); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadyz_CheckGetsDeadline(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})
	if code, body := readyz(t, h); code != http.StatusOK {
		t.Errorf("status = %d, body = %+v", code, body)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestPatterns(t *testing.T) {
	t.Parallel()

	n := 0
	c := Patterns(func() int { return n })
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected error with zero patterns")
	}
	n = 3
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTaggers(t *testing.T) {
	t.Parallel()

	newBreaker := func(name string) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  1,
			ResetTimeout: time.Hour,
		})
	}
	primary, fallback := newBreaker("treetagger"), newBreaker("openai")
	c := Taggers(primary, fallback)

	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("closed breakers: %v", err)
	}

	primary.Record(errors.New("exit status 1"))
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("one open breaker: %v", err)
	}

	fallback.Record(errors.New("exit status 1"))
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "all 2 tagger circuits open") {
		t.Errorf("err = %v", err)
	}

	if err := Taggers().Check(context.Background()); err == nil {
		t.Error("expected error without breakers")
	}
}
