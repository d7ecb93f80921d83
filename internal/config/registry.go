package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
)

// ErrTaggerNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested tagger name.
var ErrTaggerNotRegistered = errors.New("config: tagger not registered")

// TaggerFactory builds a tagger from its configuration entry.
type TaggerFactory func(TaggerEntry) (tagger.Tagger, error)

// Registry maps tagger names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	taggers map[string]TaggerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{taggers: make(map[string]TaggerFactory)}
}

// Register registers a tagger factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory TaggerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taggers[name] = factory
}

// Names returns the registered tagger names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.taggers))
	for name := range r.taggers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Create instantiates a tagger using the factory registered under entry.Name.
// Returns [ErrTaggerNotRegistered] if no factory has been registered for that name.
func (r *Registry) Create(entry TaggerEntry) (tagger.Tagger, error) {
	r.mu.RLock()
	factory, ok := r.taggers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTaggerNotRegistered, entry.Name)
	}
	t, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create tagger %q: %w", entry.Name, err)
	}
	return t, nil
}
