// Package mock provides a test double for the tagger.Tagger interface.
//
// Responses are looked up by the exact sentence; sentences without an entry
// get Default. All fields are safe to set before calling Tag; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	tg := &mock.Tagger{
//	    Responses: map[string]string{"I ran.": "I_PP_I\nran_VVD_run\n._SENT_."},
//	}
//	blob, err := tg.Tag(ctx, "I ran.")
package mock

import (
	"context"
	"sync"

	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
)

// Tagger is a mock implementation of tagger.Tagger.
type Tagger struct {
	mu sync.Mutex

	// Responses maps a sentence to the blob returned for it.
	Responses map[string]string

	// Default is returned for sentences not in Responses.
	Default string

	// Errors maps a sentence to the error returned for it.
	Errors map[string]error

	// Err, if non-nil, is returned for every sentence without an entry in
	// Errors.
	Err error

	// Calls records every sentence passed to Tag, in call order.
	Calls []string
}

// Tag records the call and returns the configured blob or error. It honours
// context cancellation.
func (m *Tagger) Tag(ctx context.Context, sentence string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, sentence)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := m.Errors[sentence]; ok {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	if blob, ok := m.Responses[sentence]; ok {
		return blob, nil
	}
	return m.Default, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (m *Tagger) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Tagger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var _ tagger.Tagger = (*Tagger)(nil)
