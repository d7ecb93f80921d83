// Package resilience provides a circuit breaker and tagger failover.
//
// The central type is [CircuitBreaker], a three-state breaker (closed, open,
// half-open) that stops a broken tagging backend from being hammered for
// every sentence of a batch. [FallbackGroup] composes several backends, each
// behind its own breaker, so a failing primary is bypassed in favour of the
// next healthy one. [TaggerChain] is the tagger.Tagger built on top of it.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is open and the reset timeout
// has not yet elapsed, or when the half-open probe budget is used up.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again. Default: 3.
	HalfOpenMax int

	// IsFailure classifies the error of a call. Errors for which it returns
	// false count as successes. Default: [CountsAsFailure].
	IsFailure func(error) bool

	// Logger receives state transitions. Default: slog.Default().
	Logger *slog.Logger
}

// CountsAsFailure is the default failure classifier. Cancellation of the
// caller's own context says nothing about the backend's health and is not
// counted.
func CountsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool
	logger       *slog.Logger
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
		logger:       cfg.Logger.With("breaker", cfg.Name),
		now:          time.Now,
		state:        StateClosed,
	}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether a call may proceed. A nil return must be followed by
// exactly one [CircuitBreaker.Record] with the call's outcome.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeSuccesses = 0
		cb.logger.Info("circuit breaker half-open, probing")
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return ErrCircuitOpen
		}
		cb.probes++
	}
	return nil
}

// Record reports the outcome of a call admitted by [CircuitBreaker.Allow].
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.isFailure(err) {
		cb.recordFailure(err)
	} else {
		cb.recordSuccess()
	}
}

// Execute runs fn if the breaker allows it and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(err error) {
	switch cb.state {
	case StateHalfOpen:
		cb.trip()
		cb.logger.Warn("circuit breaker re-opened from half-open", "err", err)
	case StateClosed:
		cb.consecutiveFail++
		if cb.consecutiveFail >= cb.maxFailures {
			cb.trip()
			cb.logger.Warn("circuit breaker opened",
				"consecutive_failures", cb.consecutiveFail, "err", err)
		}
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.logger.Info("circuit breaker closed after successful probes")
		} else {
			// Free the slot so the next probe can be admitted.
			cb.probes--
		}
	case StateClosed:
		cb.consecutiveFail = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.probes = 0
	cb.probeSuccesses = 0
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Allow].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.probes = 0
	cb.probeSuccesses = 0
	cb.logger.Info("circuit breaker manually reset")
}
