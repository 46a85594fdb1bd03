package mssql

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/storage"
)

// TestMsIdent verifies that msIdent brackets identifiers and escapes closing
// brackets.
func TestMsIdent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"simple", "[simple]"},
		{"brack]et", "[brack]]et]"},
		{`weird]]name`, `[weird]]]]name]`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, msIdent(tc.in))
	}
}

func TestMsFQN(t *testing.T) {
	assert.Equal(t, "[table]", msFQN("table"))
	assert.Equal(t, "[dbo].[table]", msFQN("dbo.table"))
	assert.Equal(t, "[sales].[q4].[table]", msFQN("sales.q4.table"))
}

func TestToCopyVal(t *testing.T) {
	assert.Equal(t, `{"a":1}`, toCopyVal(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, int64(42), toCopyVal(uint64(42)))
	assert.Equal(t, "18446744073709551615", toCopyVal(uint64(18446744073709551615)))
	assert.Nil(t, toCopyVal(nil))
	assert.Equal(t, true, toCopyVal(true))
}

func TestNewRepository_BadDSN(t *testing.T) {
	_, _, err := NewRepository(context.Background(), Config{DSN: "sqlserver://%zz"})
	assert.ErrorContains(t, err, "mssql dsn")
}

/*
TestAdapterRegistration verifies both kinds route through the newRepository
hook and that Close reaches the cleanup func.
*/
func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var got []Config
	closed := 0
	newRepository = func(_ context.Context, cfg Config) (*Repository, func(), error) {
		got = append(got, cfg)
		return &Repository{cfg: cfg}, func() { closed++ }, nil
	}

	for _, kind := range []string{"mssql", "sqlserver"} {
		repo, err := storage.New(context.Background(), storage.Config{Kind: kind, DSN: "sqlserver://sa@localhost", Table: "dbo.t"})
		require.NoError(t, err)
		repo.Close()
	}
	assert.Equal(t, 2, closed)
	assert.Equal(t, Config{DSN: "sqlserver://sa@localhost", Table: "dbo.t"}, got[1])
	assert.Contains(t, storage.ListKinds(), "sqlserver")
}
