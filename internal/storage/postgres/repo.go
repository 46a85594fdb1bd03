// Package postgres implements the Postgres write path on pgx v5: rows are
// streamed into the target table with COPY FROM STDIN.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // pgxpool connection string
	Table string // target table, optionally schema-qualified ("public.orders")
}

// Repository writes into one table through a connection pool.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository opens a pool and returns the repository with its close func.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

// CopyFrom streams rows into the table with COPY.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, &copySource{rows: rows, idx: -1})
	if err != nil {
		return n, copyError(err)
	}
	return n, nil
}

// Exec runs a statement on the pool.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// copySource is pgx.CopyFromRows with per-value conversion.
type copySource struct {
	rows [][]any
	idx  int
	buf  []any
}

func (c *copySource) Next() bool {
	c.idx++
	return c.idx < len(c.rows)
}

func (c *copySource) Values() ([]any, error) {
	row := c.rows[c.idx]
	if cap(c.buf) < len(row) {
		c.buf = make([]any, len(row))
	}
	c.buf = c.buf[:len(row)]
	for i, v := range row {
		c.buf[i] = toCopyVal(v)
	}
	return c.buf, nil
}

func (c *copySource) Err() error { return nil }

var _ pgx.CopyFromSource = (*copySource)(nil)

// toCopyVal hands variant values to pgx as text so they fit json, jsonb and
// text columns alike. Everything else passes through for pgx to encode.
func toCopyVal(v any) any {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	return v
}

// copyError surfaces the server's detail and SQLSTATE when present.
func copyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Detail != "" {
			msg += ": " + pgErr.Detail
		}
		return fmt.Errorf("copy: %s (%s): %w", msg, pgErr.SQLState(), err)
	}
	return fmt.Errorf("copy: %w", err)
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
