package annostore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
)

type recordKey struct {
	runID string
	file  string
	index int
}

// MemStore is an in-memory [Store]. Records are copied on the way in and
// out, so callers may keep mutating their values.
type MemStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[recordKey]Record)}
}

// Migrate is a no-op.
func (s *MemStore) Migrate(context.Context) error { return nil }

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

// Put inserts or replaces rec.
func (s *MemStore) Put(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{rec.RunID, rec.File, rec.Index}] = clone(*rec)
	return nil
}

// Get returns the record for the key, or (nil, nil) if none exists.
func (s *MemStore) Get(ctx context.Context, runID, file string, index int) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{runID, file, index}]
	if !ok {
		return nil, nil
	}
	out := clone(rec)
	return &out, nil
}

// ListByPattern returns the records in which patternID matched.
func (s *MemStore) ListByPattern(ctx context.Context, patternID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if len(rec.Matches[patternID]) > 0 {
			out = append(out, clone(rec))
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(
			cmp.Compare(a.RunID, b.RunID),
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Index, b.Index),
		)
	})
	return out, nil
}

func clone(rec Record) Record {
	if rec.Matches != nil {
		m := make(pattern.Result, len(rec.Matches))
		for id, ms := range rec.Matches {
			m[id] = slices.Clone(ms)
		}
		rec.Matches = m
	}
	return rec
}
