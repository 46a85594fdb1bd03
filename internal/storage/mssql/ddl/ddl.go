// Package ddl renders SQL Server CREATE TABLE statements. SQL Server has no
// CREATE TABLE IF NOT EXISTS, so the statement is guarded by OBJECT_ID.
package ddl

import (
	"context"
	"fmt"
	"strings"

	gddl "ingest/internal/ddl"
	"ingest/internal/schema"
)

// Dialect is the SQL Server rendering of the generic DDL model.
var Dialect = gddl.Dialect{
	Name:       "mssql",
	QuoteIdent: Bracket,
	MapType:    MapType,
	BoolAsInt:  true,
	Wrap:       ifObjectIDNull,
}

// Bracket quotes an identifier with [brackets], doubling embedded ].
func Bracket(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func ifObjectIDNull(fqn, body string) string {
	lit := strings.ReplaceAll(fqn, `'`, `''`)
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\nCREATE TABLE %s (\n  %s\n);\nEND;", lit, fqn, body)
}

// MapType maps a column type to a SQL Server type. TINYINT is unsigned in
// SQL Server, so Int8 widens to SMALLINT and UInt8 fits it exactly.
func MapType(t schema.Type) string {
	switch t {
	case schema.UInt8:
		return "TINYINT"
	case schema.Int8, schema.Int16:
		return "SMALLINT"
	case schema.Int32, schema.UInt16:
		return "INT"
	case schema.Int64, schema.UInt32:
		return "BIGINT"
	case schema.UInt64:
		return "DECIMAL(20,0)"
	case schema.Float32:
		return "REAL"
	case schema.Float64:
		return "FLOAT"
	case schema.Boolean:
		return "BIT"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// BuildCreateTableSQL returns the guarded CREATE TABLE batch for table.
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

// EnsureTable creates the table if it does not exist.
func EnsureTable(ctx context.Context, repo Execer, table string, cols []schema.ColumnSpec) error {
	sql, err := BuildCreateTableSQL(table, cols)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sql)
}
