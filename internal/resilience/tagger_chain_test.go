package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
	"github.com/syoon9/CEFRJ-annotator/pkg/tagger/mock"
)

func TestTaggerChain_PrimaryUsed(t *testing.T) {
	primary := &mock.Tagger{Default: "I_PP_I"}
	secondary := &mock.Tagger{Default: "unused"}
	chain := NewTaggerChain(primary, "treetagger", FallbackConfig{})
	chain.AddFallback("openai", secondary)

	got, err := chain.Tag(context.Background(), "I")
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if got != "I_PP_I" {
		t.Errorf("Tag = %q, want I_PP_I", got)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestTaggerChain_Failover(t *testing.T) {
	primary := &mock.Tagger{Err: fmt.Errorf("exit 1: %w", tagger.ErrTaggerFailed)}
	secondary := &mock.Tagger{Default: "I_PP_I"}
	chain := NewTaggerChain(primary, "treetagger", FallbackConfig{})
	chain.AddFallback("openai", secondary)

	got, err := chain.Tag(context.Background(), "I")
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if got != "I_PP_I" {
		t.Errorf("Tag = %q, want I_PP_I", got)
	}
	if diff := chain.Names(); len(diff) != 2 || diff[1] != "openai" {
		t.Errorf("Names = %v", diff)
	}
}

func TestTaggerChain_AllFailKeepsCause(t *testing.T) {
	primary := &mock.Tagger{Err: fmt.Errorf("exit 1: %w", tagger.ErrTaggerFailed)}
	chain := NewTaggerChain(primary, "treetagger", FallbackConfig{})

	_, err := chain.Tag(context.Background(), "I")
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, tagger.ErrTaggerFailed) {
		t.Errorf("err = %v, want it to wrap ErrTaggerFailed", err)
	}
}

func TestTaggerChain_NoOutputDoesNotTrip(t *testing.T) {
	primary := &mock.Tagger{Err: tagger.ErrNoOutput}
	chain := NewTaggerChain(primary, "treetagger", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})

	for i := 0; i < 3; i++ {
		if _, err := chain.Tag(context.Background(), "..."); !errors.Is(err, tagger.ErrNoOutput) {
			t.Fatalf("err = %v, want ErrNoOutput", err)
		}
	}
	if s := chain.Breaker("treetagger").State(); s != StateClosed {
		t.Errorf("breaker state = %v, want closed", s)
	}
	if primary.CallCount() != 3 {
		t.Errorf("primary calls = %d, want 3", primary.CallCount())
	}
}

func TestTaggerChain_OpenBreakerSkipsBackend(t *testing.T) {
	primary := &mock.Tagger{Err: tagger.ErrTaggerFailed}
	secondary := &mock.Tagger{Default: "x_NN_x"}
	chain := NewTaggerChain(primary, "treetagger", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	chain.AddFallback("openai", secondary)

	for i := 0; i < 3; i++ {
		if _, err := chain.Tag(context.Background(), "x"); err != nil {
			t.Fatalf("Tag: %v", err)
		}
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker should open)", primary.CallCount())
	}
}
