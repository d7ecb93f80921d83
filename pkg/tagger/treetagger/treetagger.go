// Package treetagger provides a tagger.Tagger that runs a TreeTagger
// executable as a subprocess.
//
// Each call starts the configured command, writes the preprocessed sentence
// to its stdin and reads "token\ttag\tlemma" lines from its stdout. The
// wrapper scripts shipped with TreeTagger (tree-tagger-english and friends)
// tokenize their input themselves, so the sentence is passed as is.
package treetagger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
)

const defaultTimeout = 30 * time.Second

// Tagger runs a TreeTagger command for every sentence.
type Tagger struct {
	command string
	args    []string
	env     []string
	timeout time.Duration
}

// Option is a functional option for Tagger.
type Option func(*Tagger)

// WithArgs sets extra command-line arguments.
func WithArgs(args ...string) Option {
	return func(t *Tagger) {
		t.args = args
	}
}

// WithEnv appends KEY=VALUE pairs to the subprocess environment.
func WithEnv(env ...string) Option {
	return func(t *Tagger) {
		t.env = append(t.env, env...)
	}
}

// WithTimeout bounds a single invocation. Default: 30s. Zero disables the
// limit; the caller's context still applies.
func WithTimeout(d time.Duration) Option {
	return func(t *Tagger) {
		t.timeout = d
	}
}

// New returns a Tagger for command, which is looked up on PATH when it is not
// a path.
func New(command string, opts ...Option) (*Tagger, error) {
	if command == "" {
		return nil, errors.New("treetagger: command must not be empty")
	}
	t := &Tagger{command: command, timeout: defaultTimeout}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Tag implements tagger.Tagger.
func (t *Tagger) Tag(ctx context.Context, sentence string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Stdin = strings.NewReader(tagger.Preprocess(sentence))
	if len(t.env) > 0 {
		cmd.Env = append(cmd.Environ(), t.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("treetagger: run %s: %w: %w: %s", t.command, tagger.ErrTaggerFailed, err, msg)
		}
		return "", fmt.Errorf("treetagger: run %s: %w: %w", t.command, tagger.ErrTaggerFailed, err)
	}

	blob, err := tagger.Normalize(stdout.String())
	if err != nil {
		return "", fmt.Errorf("treetagger: %w", err)
	}
	return blob, nil
}

var _ tagger.Tagger = (*Tagger)(nil)
