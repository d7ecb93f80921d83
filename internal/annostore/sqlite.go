package annostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

// SQLiteSchema is the DDL for the annotations table in SQLite.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS annotations (
    run_id          TEXT    NOT NULL,
    file            TEXT    NOT NULL,
    sentence_index  INTEGER NOT NULL,
    sentence        TEXT    NOT NULL,
    sentence_hash   TEXT    NOT NULL,
    tagged          TEXT    NOT NULL DEFAULT '',
    matches         TEXT    NOT NULL DEFAULT '{}',
    created_at      TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, file, sentence_index)
);
CREATE INDEX IF NOT EXISTS idx_annotations_hash ON annotations(sentence_hash);
`

// SQLiteStore is a [Store] backed by SQLite through database/sql. Matches
// are stored as a JSON object keyed by pattern ID and queried with json_each.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps an open database. The caller is responsible for
// calling [SQLiteStore.Migrate].
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenSQLite opens the database file at path. A single connection is used
// so concurrent writers queue instead of failing with SQLITE_BUSY.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("annostore: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db), nil
}

// Migrate executes [SQLiteSchema].
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("annostore: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces rec.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	matchesJSON, err := json.Marshal(emptyResult(rec.Matches))
	if err != nil {
		return fmt.Errorf("annostore: marshal matches: %w", err)
	}

	const query = `
		INSERT INTO annotations (
			run_id, file, sentence_index, sentence, sentence_hash, tagged, matches
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, file, sentence_index) DO UPDATE SET
			sentence = excluded.sentence,
			sentence_hash = excluded.sentence_hash,
			tagged = excluded.tagged,
			matches = excluded.matches`

	_, err = s.db.ExecContext(ctx, query,
		rec.RunID, rec.File, rec.Index, rec.Sentence, rec.SentenceHash, rec.Tagged, string(matchesJSON),
	)
	if err != nil {
		return fmt.Errorf("annostore: put: %w", err)
	}
	return nil
}

// Get returns the record for the key, or (nil, nil) if none exists.
func (s *SQLiteStore) Get(ctx context.Context, runID, file string, index int) (*Record, error) {
	const query = `
		SELECT run_id, file, sentence_index, sentence, sentence_hash, tagged, matches
		FROM annotations
		WHERE run_id = ? AND file = ? AND sentence_index = ?`

	rec, err := scanSQLite(s.db.QueryRowContext(ctx, query, runID, file, index))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("annostore: get %s/%s#%d: %w", runID, file, index, err)
	}
	return rec, nil
}

// ListByPattern returns the records whose matches contain patternID.
func (s *SQLiteStore) ListByPattern(ctx context.Context, patternID string) ([]Record, error) {
	const query = `
		SELECT a.run_id, a.file, a.sentence_index, a.sentence, a.sentence_hash, a.tagged, a.matches
		FROM annotations AS a
		WHERE EXISTS (SELECT 1 FROM json_each(a.matches) AS m WHERE m.key = ?)
		ORDER BY a.run_id, a.file, a.sentence_index`

	rows, err := s.db.QueryContext(ctx, query, patternID)
	if err != nil {
		return nil, fmt.Errorf("annostore: list by pattern: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("annostore: list scan: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("annostore: list by pattern: %w", err)
	}
	return recs, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row sqlScanner) (*Record, error) {
	var (
		rec         Record
		matchesJSON string
	)
	if err := row.Scan(&rec.RunID, &rec.File, &rec.Index, &rec.Sentence, &rec.SentenceHash, &rec.Tagged, &matchesJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(matchesJSON), &rec.Matches); err != nil {
		return nil, fmt.Errorf("annostore: unmarshal matches: %w", err)
	}
	return &rec, nil
}
