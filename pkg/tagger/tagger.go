// Package tagger defines the Tagger interface for part-of-speech tagging
// oracles.
//
// A Tagger turns one plain-text sentence into an annotated blob: one token
// per line, each line holding the token, its tag and its lemma joined by
// underscores ("was_VBD_be"). The pattern matcher only consumes that blob and
// never knows which backend produced it.
//
// Implementations must be safe for concurrent use. A failed call must return
// a non-nil error; callers treat it as a hard failure for that sentence only.
package tagger

import (
	"context"
	"errors"
)

var (
	// ErrTaggerFailed wraps failures of the underlying tagging backend
	// (process exit, API error, timeout).
	ErrTaggerFailed = errors.New("tagger: backend failed")

	// ErrNoOutput is returned when the backend succeeded but produced no
	// usable token lines.
	ErrNoOutput = errors.New("tagger: no tagged output")
)

// Tagger is the abstraction over any tagging backend.
type Tagger interface {
	// Tag returns the annotated blob for sentence. The context bounds the call;
	// implementations return promptly once it is cancelled.
	Tag(ctx context.Context, sentence string) (string, error)
}

// Func adapts an ordinary function to the Tagger interface.
type Func func(ctx context.Context, sentence string) (string, error)

// Tag calls f(ctx, sentence).
func (f Func) Tag(ctx context.Context, sentence string) (string, error) {
	return f(ctx, sentence)
}

var _ Tagger = Func(nil)
