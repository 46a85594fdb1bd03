package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/schema"
)

var testDialect = Dialect{
	Name:       "test",
	QuoteIdent: DoubleQuote,
	MapType: func(t schema.Type) string {
		if t == schema.String {
			return "TEXT"
		}
		return "BIGINT"
	},
	Wrap: IfNotExists,
}

func lit(s string) *string { return &s }

func mustCol(t *testing.T, name string, typ schema.Type, nullable bool, def *string, ord int) schema.ColumnSpec {
	t.Helper()
	c, err := schema.NewColumnSpec(name, typ, nullable, def, ord)
	require.NoError(t, err)
	return c
}

/*
TestBuildCreateTableSQL renders a table from resolved columns and checks
quoting, nullability and default literals.
*/
func TestBuildCreateTableSQL(t *testing.T) {
	cols := []schema.ColumnSpec{
		mustCol(t, "id", schema.String, false, nil, 0),
		mustCol(t, "a", schema.Int32, true, lit("2"), 1),
		mustCol(t, `we"ird`, schema.String, true, lit("it's"), 2),
	}
	def, err := FromColumns("public.orders", cols, testDialect)
	require.NoError(t, err)

	sql, err := BuildCreateTableSQL(def, testDialect)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"public\".\"orders\" (\n"+
		"  \"id\" TEXT NOT NULL,\n"+
		"  \"a\" BIGINT DEFAULT 2,\n"+
		"  \"we\"\"ird\" TEXT DEFAULT 'it''s'\n"+
		");", sql)
}

func TestBuildCreateTableSQL_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  TableDef
		want string
	}{
		{"empty fqn", TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}}, "table FQN must not be empty"},
		{"no columns", TableDef{FQN: "t"}, "at least one column is required"},
		{"empty name", TableDef{FQN: "t", Columns: []ColumnDef{{SQLType: "INT"}}}, "column with empty name"},
		{"empty type", TableDef{FQN: "t", Columns: []ColumnDef{{Name: "x"}}}, "missing SQLType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildCreateTableSQL(tt.def, testDialect)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefaultSQL(t *testing.T) {
	b := mustCol(t, "b", schema.Boolean, true, lit("true"), 0)
	assert.Equal(t, "TRUE", DefaultSQL(b, false))
	assert.Equal(t, "1", DefaultSQL(b, true))
	assert.Empty(t, DefaultSQL(mustCol(t, "n", schema.Int64, true, nil, 0), false))
	assert.Equal(t, "'2024-01-02'", DefaultSQL(mustCol(t, "d", schema.Date, true, lit("2024-01-02"), 0), false))
}
