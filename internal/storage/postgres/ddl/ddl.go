// Package ddl renders Postgres CREATE TABLE statements for resolved columns.
package ddl

import (
	"context"

	gddl "ingest/internal/ddl"
	"ingest/internal/schema"
)

// Dialect is the Postgres rendering of the generic DDL model.
var Dialect = gddl.Dialect{
	Name:       "postgres",
	QuoteIdent: gddl.DoubleQuote,
	MapType:    MapType,
	Wrap:       gddl.IfNotExists,
}

// MapType maps a column type to a Postgres type. Unsigned types widen to the
// next signed type; UInt64 needs NUMERIC.
func MapType(t schema.Type) string {
	switch t {
	case schema.Int8, schema.Int16, schema.UInt8:
		return "SMALLINT"
	case schema.Int32, schema.UInt16:
		return "INTEGER"
	case schema.Int64, schema.UInt32:
		return "BIGINT"
	case schema.UInt64:
		return "NUMERIC(20,0)"
	case schema.Float32:
		return "REAL"
	case schema.Float64:
		return "DOUBLE PRECISION"
	case schema.Boolean:
		return "BOOLEAN"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "TIMESTAMPTZ"
	case schema.Variant:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// BuildCreateTableSQL returns CREATE TABLE IF NOT EXISTS for table.
func BuildCreateTableSQL(table string, cols []schema.ColumnSpec) (string, error) {
	def, err := gddl.FromColumns(table, cols, Dialect)
	if err != nil {
		return "", err
	}
	return gddl.BuildCreateTableSQL(def, Dialect)
}

// Execer runs a statement.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// EnsureTable creates the table if it does not exist. It is idempotent.
func EnsureTable(ctx context.Context, repo Execer, table string, cols []schema.ColumnSpec) error {
	sql, err := BuildCreateTableSQL(table, cols)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sql)
}
