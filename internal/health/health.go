// Package health serves the readiness probe of long-running cefrj commands.
//
// /readyz answers 200 only when every registered [Checker] passes. The body
// is a JSON object with a "status" field ("ok" or "fail") and a "checks" map
// holding the outcome of each named checker. Liveness (/healthz) is served
// by the telemetry mux in internal/observe.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/syoon9/CEFRJ-annotator/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /readyz. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a Handler evaluating checkers on every request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Readyz runs all checkers concurrently, each under [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)
	for _, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
				return
			}
			checks[c.Name] = "ok"
		})
	}
	wg.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /readyz route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Patterns reports not ready while count returns zero compiled patterns.
func Patterns(count func() int) Checker {
	return Checker{
		Name: "patterns",
		Check: func(context.Context) error {
			if count() == 0 {
				return errors.New("no patterns loaded")
			}
			return nil
		},
	}
}

// Taggers reports not ready when every breaker is open, i.e. no tagger in
// the chain would be tried.
func Taggers(breakers ...*resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "taggers",
		Check: func(context.Context) error {
			for _, cb := range breakers {
				if cb.State() != resilience.StateOpen {
					return nil
				}
			}
			if len(breakers) == 0 {
				return errors.New("no taggers configured")
			}
			return fmt.Errorf("all %d tagger circuits open", len(breakers))
		},
	}
}
