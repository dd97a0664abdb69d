package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres keeps one JSONB row per document using pgx via database/sql.
type Postgres struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
)`

// NewPostgres opens a Postgres connection and ensures the documents table.
func NewPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get fetches a document by id.
func (s *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransportError{Op: "get", Collection: collection, Err: err}
	}
	return decodeDoc(collection, raw)
}

// Set writes the full document.
func (s *Postgres) Set(ctx context.Context, collection, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return &TransportError{Op: "set", Collection: collection, Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, collection, id, raw)
	if err != nil {
		return &TransportError{Op: "set", Collection: collection, Err: err}
	}
	return nil
}

// Update merges the given fields into the stored document inside a
// row-locking transaction so dotted paths behave like the other backends.
func (s *Postgres) Update(ctx context.Context, collection, id string, fields Document) error {
	return s.mutate(ctx, "update", collection, id, func(doc Document) {
		for field, value := range fields {
			setPath(doc, field, value)
		}
	})
}

// Increment adds delta inside the same row-locking transaction, which makes
// concurrent increments serialize instead of racing.
func (s *Postgres) Increment(ctx context.Context, collection, id string, deltas map[string]int64, zeroInit []string) error {
	return s.mutate(ctx, "increment", collection, id, func(doc Document) {
		if len(doc) == 0 {
			for _, f := range zeroInit {
				setPath(doc, f, int64(0))
			}
		}
		for field, delta := range deltas {
			cur, _ := getPath(doc, field)
			setPath(doc, field, asInt64(cur)+delta)
		}
	})
}

// QueryEq matches a top-level field with JSONB containment.
func (s *Postgres) QueryEq(ctx context.Context, collection, field string, value any) ([]Document, error) {
	filter, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return nil, &TransportError{Op: "query", Collection: collection, Err: err}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND data @> $2`,
		collection, filter)
	if err != nil {
		return nil, &TransportError{Op: "query", Collection: collection, Err: err}
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, &TransportError{Op: "query", Collection: collection, Err: err}
		}
		doc, err := decodeDoc(collection, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransportError{Op: "query", Collection: collection, Err: err}
	}
	return out, nil
}

// mutate runs a read-modify-write under SELECT ... FOR UPDATE, creating the
// row when absent.
func (s *Postgres) mutate(ctx context.Context, op, collection, id string, fn func(Document)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransportError{Op: op, Collection: collection, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	doc := Document{}
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// row is created below
	case err != nil:
		return &TransportError{Op: op, Collection: collection, Err: err}
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return &TransportError{Op: op, Collection: collection, Err: err}
		}
	}

	fn(doc)

	next, err := json.Marshal(doc)
	if err != nil {
		return &TransportError{Op: op, Collection: collection, Err: err}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, collection, id, next)
	if err != nil {
		return &TransportError{Op: op, Collection: collection, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &TransportError{Op: op, Collection: collection, Err: err}
	}
	return nil
}

func decodeDoc(collection string, raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &TransportError{Op: "decode", Collection: collection, Err: err}
	}
	return doc, nil
}
