// Package sqlite is a query backend persisting records as JSON documents in
// a sqlite database. Predicates translate to WHERE fragments over
// json_extract, so filtering happens in the database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/loomkit/loom/query"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	position INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (collection, position)
);
`

type Store struct {
	db *sql.DB

	mu sync.RWMutex

	// collection → reference field → target collection
	refs map[string]map[string]string
}

// Open opens (creating if needed) a store at the given sqlite DSN.
// Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an existing database handle, creating the schema if needed.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{
		db:   db,
		refs: make(map[string]map[string]string),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetCollection replaces the records of a collection, keeping their order.
func (s *Store) SetCollection(ctx context.Context, name string, records ...query.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("sqlite: clear collection %s: %w", name, err)
	}

	for i, rec := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO records (collection, position, data) VALUES (?, ?, ?)`,
			name, i, string(rec),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert into %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	return nil
}

// SetReference declares field in collection to hold the id of a record in
// target, making it expandable through Request.Include.
func (s *Store) SetReference(collection, field, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs[collection] == nil {
		s.refs[collection] = make(map[string]string)
	}
	s.refs[collection][field] = target
}

func (s *Store) Query(ctx context.Context, req query.Request) ([]query.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clauses := []string{"collection = ?"}
	params := []any{req.Collection}

	for _, p := range req.Predicates {
		cond, err := translate(p)
		if err != nil {
			return nil, err
		}

		clauses = append(clauses, cond.clause)
		params = append(params, cond.params...)
	}

	q := fmt.Sprintf(
		`SELECT data FROM records WHERE %s ORDER BY position`,
		strings.Join(clauses, " AND "),
	)
	if req.Limit > 0 {
		q += " LIMIT ?"
		params = append(params, req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, params...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", req.Collection, err)
	}
	defer rows.Close()

	var out []query.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		out = append(out, query.Record(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read records: %w", err)
	}

	if len(req.Include) > 0 {
		s.mu.RLock()
		refs := s.refs[req.Collection]
		s.mu.RUnlock()

		for i, rec := range out {
			expanded, err := s.expand(ctx, rec, refs, req.Include)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
	}

	return out, nil
}

func (s *Store) expand(ctx context.Context, rec query.Record, refs map[string]string, include []string) (query.Record, error) {
	doc, err := decodeRecord(rec)
	if err != nil {
		return nil, err
	}

	for _, field := range include {
		target, ok := refs[field]
		if !ok {
			return nil, fmt.Errorf("sqlite: field %q is not a reference", field)
		}

		id, ok := doc[field].(string)
		if !ok {
			continue
		}

		var data string
		err := s.db.QueryRowContext(ctx,
			`SELECT data FROM records WHERE collection = ? AND json_extract(data, '$.id') = ?`,
			target, id,
		).Scan(&data)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: expand %s: %w", field, err)
		}

		value, err := decodeRecord(query.Record(data))
		if err != nil {
			return nil, err
		}
		doc[field] = value
	}

	return encodeRecord(doc)
}
