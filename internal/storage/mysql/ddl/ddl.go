// Package ddl renders MySQL CREATE TABLE statements.
package ddl

import (
	"context"
	"strings"

	gddl "ingest/internal/ddl"
	"ingest/internal/schema"
)

var Dialect = gddl.Dialect{
	Name:       "mysql",
	QuoteIdent: Backtick,
	MapType:    MapType,
	Wrap:       gddl.IfNotExists,
}

func Backtick(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// MapType maps a column type to a MySQL type. Strings use TEXT because
// VARCHAR needs a length the catalog does not carry. TEXT and JSON columns
// cannot take a literal DEFAULT before 8.0.13.
func MapType(t schema.Type) string {
	switch t {
	case schema.Int8:
		return "TINYINT"
	case schema.UInt8:
		return "TINYINT UNSIGNED"
	case schema.Int16:
		return "SMALLINT"
	case schema.UInt16:
		return "SMALLINT UNSIGNED"
	case schema.Int32:
		return "INT"
	case schema.UInt32:
		return "INT UNSIGNED"
	case schema.Int64:
		return "BIGINT"
	case schema.UInt64:
		return "BIGINT UNSIGNED"
	case schema.Float32:
		return "FLOAT"
	case schema.Float64:
		return "DOUBLE"
	case schema.Boolean:
		return "BOOLEAN"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "DATETIME(6)"
	case schema.Variant:
		return "JSON"
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
