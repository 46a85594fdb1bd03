package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/storage"
)

func TestSplitFQN(t *testing.T) {
	assert.Equal(t, pgx.Identifier{"public", "orders"}, splitFQN("public.orders"))
	assert.Equal(t, pgx.Identifier{"orders"}, splitFQN("orders"))
	assert.Equal(t, pgx.Identifier{"a", "b"}, splitFQN("a..b"))
}

/*
TestCopySource_ConvertsVariants checks that json.RawMessage is sent as text
and every other value passes through unchanged.
*/
func TestCopySource_ConvertsVariants(t *testing.T) {
	src := &copySource{rows: [][]any{
		{int64(1), json.RawMessage(`{"a":1}`), nil},
		{int64(2), "x", true},
	}, idx: -1}

	require.True(t, src.Next())
	v, err := src.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), `{"a":1}`, nil}, v)

	require.True(t, src.Next())
	v, _ = src.Values()
	assert.Equal(t, []any{int64(2), "x", true}, v)
	assert.False(t, src.Next())
	assert.NoError(t, src.Err())
}

func TestCopyError_IncludesDetail(t *testing.T) {
	err := copyError(&pgconn.PgError{Code: "23502", Message: "null value in column", Detail: "Failing row contains (1, null)"})
	assert.Contains(t, err.Error(), "null value in column: Failing row contains (1, null) (23502)")
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))

	plain := copyError(errors.New("conn reset"))
	assert.EqualError(t, plain, "copy: conn reset")
}

/*
TestAdapterRegistration stubs the constructor so storage.New routes through
the registered factory without a database.
*/
func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var got Config
	var closed int32
	newRepository = func(_ context.Context, cfg Config) (*Repository, func(), error) {
		got = cfg
		return &Repository{cfg: cfg}, func() { atomic.AddInt32(&closed, 1) }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "postgres", DSN: "postgres://u@h/db", Table: "public.t"})
	require.NoError(t, err)
	assert.Equal(t, Config{DSN: "postgres://u@h/db", Table: "public.t"}, got)

	n, err := repo.CopyFrom(context.Background(), []string{"a"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	repo.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&closed))
}
