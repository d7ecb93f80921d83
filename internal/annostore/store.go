// Package annostore persists per-sentence annotation results so that
// batch runs can be queried after the fact, for example "every sentence in
// which pattern X fired".
//
// Three backends share the [Store] interface: [MemStore] for tests and
// one-shot runs, [SQLiteStore] (pure Go, no cgo) for local files and
// [PostgresStore] for shared databases.
package annostore

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
	"github.com/zeebo/blake3"
)

// Record is the stored result for one sentence of one batch run.
// (RunID, File, Index) identifies a record.
type Record struct {
	RunID string `json:"run_id"`
	File  string `json:"file"`
	Index int    `json:"sentence_index"`

	Sentence string `json:"sentence"`

	// SentenceHash is the BLAKE3 hex digest of Sentence. [Store.Put] fills
	// it in when empty.
	SentenceHash string `json:"sentence_hash"`

	Tagged  string         `json:"tagged_sentence"`
	Matches pattern.Result `json:"matches"`
}

// Store persists annotation records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// Put inserts rec or replaces the record with the same key.
	Put(ctx context.Context, rec *Record) error

	// Get returns the record for the key, or (nil, nil) if none exists.
	Get(ctx context.Context, runID, file string, index int) (*Record, error)

	// ListByPattern returns every record in which patternID matched at
	// least once, ordered by run, file and sentence index.
	ListByPattern(ctx context.Context, patternID string) ([]Record, error)

	// Close releases the underlying resources.
	Close() error
}

// HashSentence returns the BLAKE3 hex digest of sentence.
func HashSentence(sentence string) string {
	sum := blake3.Sum256([]byte(sentence))
	return hex.EncodeToString(sum[:])
}

// Driver names accepted by [Open].
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the store selected by driver and migrates its schema.
// dsn is a file path for sqlite and a connection string for postgres; it is
// ignored for memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case DriverMemory:
		s = NewMemStore()
	case DriverSQLite:
		s, err = OpenSQLite(dsn)
	case DriverPostgres:
		s, err = OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("annostore: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// prepare fills derived fields of rec before it is written.
func prepare(rec *Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("annostore: record for %s#%d has no run id", rec.File, rec.Index)
	}
	if rec.SentenceHash == "" {
		rec.SentenceHash = HashSentence(rec.Sentence)
	}
	return nil
}

// emptyResult returns r if non-nil, otherwise an empty non-nil map. This
// ensures JSON marshalling produces "{}" instead of "null".
func emptyResult(r pattern.Result) pattern.Result {
	if r == nil {
		return pattern.Result{}
	}
	return r
}
