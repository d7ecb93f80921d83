package resilience

import (
	"context"
	"errors"

	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
)

// TaggerChain implements [tagger.Tagger] with failover across several
// tagging backends, each behind its own circuit breaker.
//
// A backend that returns [tagger.ErrNoOutput] is healthy but had nothing to
// say about the sentence; the next backend is still tried, but the breaker
// does not count it as a failure.
type TaggerChain struct {
	group *FallbackGroup[tagger.Tagger]
}

var _ tagger.Tagger = (*TaggerChain)(nil)

// NewTaggerChain creates a [TaggerChain] with primary as the preferred
// backend.
func NewTaggerChain(primary tagger.Tagger, primaryName string, cfg FallbackConfig) *TaggerChain {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = taggerFailure
	}
	return &TaggerChain{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (c *TaggerChain) AddFallback(name string, t tagger.Tagger) {
	c.group.AddFallback(name, t)
}

// Names returns the backend names in try order.
func (c *TaggerChain) Names() []string {
	return c.group.Names()
}

// Breaker returns the circuit breaker guarding the named backend, or nil.
func (c *TaggerChain) Breaker(name string) *CircuitBreaker {
	return c.group.Breaker(name)
}

// Tag sends sentence to the first healthy backend. The error, if every
// backend fails, wraps [ErrAllFailed] and each backend's error, so
// errors.Is(err, tagger.ErrTaggerFailed) still holds.
func (c *TaggerChain) Tag(ctx context.Context, sentence string) (string, error) {
	return Do(ctx, c.group, func(ctx context.Context, t tagger.Tagger) (string, error) {
		return t.Tag(ctx, sentence)
	})
}

func taggerFailure(err error) bool {
	return CountsAsFailure(err) && !errors.Is(err, tagger.ErrNoOutput)
}
