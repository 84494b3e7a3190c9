// Package postgres implements strand.SessionStore backed by PostgreSQL.
//
// Session state and thread histories are stored as a single JSONB
// document per session, which keeps reads and writes atomic under the
// framework's last-write-wins semantics.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strandkit/strand"
)

// Store implements strand.SessionStore backed by PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithTable overrides the table name used for session documents.
// Default: "sessions". Only affects Init and subsequent queries;
// the name is interpolated into SQL, so pass only trusted values.
func WithTable(name string) Option {
	return func(s *Store) { s.table = name }
}

var _ strand.SessionStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, table: "sessions"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the sessions table. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at BIGINT NOT NULL
	)`, s.table)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: init: %w", err)
	}
	return nil
}

// Get returns the stored session document, or strand.ErrSessionNotFound
// if no row exists for the id.
func (s *Store) Get(ctx context.Context, id string) (strand.SessionData, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, s.table), id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return strand.SessionData{}, strand.ErrSessionNotFound
	}
	if err != nil {
		return strand.SessionData{}, fmt.Errorf("postgres: get session: %w", err)
	}

	var data strand.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return strand.SessionData{}, fmt.Errorf("postgres: decode session %s: %w", id, err)
	}
	if data.Threads == nil {
		data.Threads = make(map[string][]*strand.Message)
	}
	return data, nil
}

// Save upserts the full session document.
func (s *Store) Save(ctx context.Context, id string, data strand.SessionData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("postgres: encode session %s: %w", id, err)
	}

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data, updated_at)
		 VALUES ($1, $2::jsonb, $3)
		 ON CONFLICT (id) DO UPDATE SET
		   data = EXCLUDED.data,
		   updated_at = EXCLUDED.updated_at`, s.table),
		id, raw, strand.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: save session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id); err != nil {
		return fmt.Errorf("postgres: delete session: %w", err)
	}
	return nil
}

// ListIDs returns session ids ordered by most recently updated first.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id FROM %s ORDER BY updated_at DESC`, s.table))
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
