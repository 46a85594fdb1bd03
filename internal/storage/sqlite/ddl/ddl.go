// Package ddl renders SQLite CREATE TABLE statements. SQLite has only storage
// classes, so every integer width maps to INTEGER and booleans are 0/1.
package ddl

import (
	"context"

	gddl "ingest/internal/ddl"
	"ingest/internal/schema"
)

var Dialect = gddl.Dialect{
	Name:       "sqlite",
	QuoteIdent: gddl.DoubleQuote,
	MapType:    MapType,
	BoolAsInt:  true,
	Wrap:       gddl.IfNotExists,
}

func MapType(t schema.Type) string {
	switch t {
	case schema.Int8, schema.Int16, schema.Int32, schema.Int64,
		schema.UInt8, schema.UInt16, schema.UInt32, schema.UInt64, schema.Boolean:
		return "INTEGER"
	case schema.Float32, schema.Float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

func BuildCreateTableSQL(table string, cols []schema.ColumnSpec) (string, error) {
	def, err := gddl.FromColumns(table, cols, Dialect)
	if err != nil {
		return "", err
	}
	return gddl.BuildCreateTableSQL(def, Dialect)
}

type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// EnsureTable creates the table if it does not exist.
func EnsureTable(ctx context.Context, repo Execer, table string, cols []schema.ColumnSpec) error {
	sql, err := BuildCreateTableSQL(table, cols)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sql)
}
