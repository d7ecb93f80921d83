package annostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema is the SQL DDL for the annotations table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS annotations (
    run_id          TEXT        NOT NULL,
    file            TEXT        NOT NULL,
    sentence_index  INTEGER     NOT NULL,
    sentence        TEXT        NOT NULL,
    sentence_hash   TEXT        NOT NULL,
    tagged          TEXT        NOT NULL DEFAULT '',
    matches         JSONB       NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (run_id, file, sentence_index)
);
CREATE INDEX IF NOT EXISTS idx_annotations_hash ON annotations(sentence_hash);
CREATE INDEX IF NOT EXISTS idx_annotations_matches ON annotations USING GIN (matches);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Matches are stored as
// JSONB keyed by pattern ID, so pattern lookups use the ? key operator.
type PostgresStore struct {
	db    DB
	close func()
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on an existing connection or
// pool. The caller owns db and is responsible for calling
// [PostgresStore.Migrate].
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres creates a connection pool for dsn. [PostgresStore.Close]
// closes the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("annostore: connect postgres: %w", err)
	}
	return &PostgresStore{db: pool, close: pool.Close}, nil
}

// Migrate executes the [PostgresSchema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("annostore: migrate: %w", err)
	}
	return nil
}

// Close closes the pool opened by [OpenPostgres]. It does nothing for a
// store built with [NewPostgresStore].
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// Put inserts or replaces rec.
func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
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
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (run_id, file, sentence_index) DO UPDATE SET
			sentence = EXCLUDED.sentence,
			sentence_hash = EXCLUDED.sentence_hash,
			tagged = EXCLUDED.tagged,
			matches = EXCLUDED.matches`

	_, err = s.db.Exec(ctx, query,
		rec.RunID, rec.File, rec.Index, rec.Sentence, rec.SentenceHash, rec.Tagged, matchesJSON,
	)
	if err != nil {
		return fmt.Errorf("annostore: put: %w", err)
	}
	return nil
}

// Get returns the record for the key, or (nil, nil) if none exists.
func (s *PostgresStore) Get(ctx context.Context, runID, file string, index int) (*Record, error) {
	const query = `
		SELECT run_id, file, sentence_index, sentence, sentence_hash, tagged, matches
		FROM annotations
		WHERE run_id = $1 AND file = $2 AND sentence_index = $3`

	rec, err := scanPostgres(s.db.QueryRow(ctx, query, runID, file, index))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("annostore: get %s/%s#%d: %w", runID, file, index, err)
	}
	return rec, nil
}

// ListByPattern returns the records whose matches contain patternID.
func (s *PostgresStore) ListByPattern(ctx context.Context, patternID string) ([]Record, error) {
	const query = `
		SELECT run_id, file, sentence_index, sentence, sentence_hash, tagged, matches
		FROM annotations
		WHERE matches ? $1
		ORDER BY run_id, file, sentence_index`

	rows, err := s.db.Query(ctx, query, patternID)
	if err != nil {
		return nil, fmt.Errorf("annostore: list by pattern: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanPostgres(rows)
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

func scanPostgres(row pgx.Row) (*Record, error) {
	var (
		rec         Record
		index       int32
		matchesJSON []byte
	)
	if err := row.Scan(&rec.RunID, &rec.File, &index, &rec.Sentence, &rec.SentenceHash, &rec.Tagged, &matchesJSON); err != nil {
		return nil, err
	}
	rec.Index = int(index)
	if err := json.Unmarshal(matchesJSON, &rec.Matches); err != nil {
		return nil, fmt.Errorf("annostore: unmarshal matches: %w", err)
	}
	return &rec, nil
}
