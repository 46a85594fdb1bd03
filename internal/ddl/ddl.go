// Package ddl is a dialect-neutral model of a CREATE TABLE statement built
// from resolved target columns. Storage backends supply a Dialect for
// identifier quoting, type mapping and the create-if-missing wrapper.
package ddl

import (
	"fmt"
	"strconv"
	"strings"

	"ingest/internal/schema"
)

// ColumnDef is one rendered column. Default is a raw SQL expression.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
	Default  string
}

// TableDef is a table name in dotted form plus its columns in order.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name string
	// QuoteIdent quotes one identifier segment.
	QuoteIdent func(string) string
	// MapType returns the SQL type for a column type.
	MapType func(schema.Type) string
	// BoolAsInt renders boolean defaults as 1/0 instead of TRUE/FALSE.
	BoolAsInt bool
	// Wrap turns the quoted table name and column list into the final
	// statement, which must not fail when the table already exists.
	Wrap func(fqn, body string) string
}

// QuoteFQN quotes each dot-separated segment of name.
func (d Dialect) QuoteFQN(name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// FromColumns builds a TableDef for table using the dialect's type mapping.
func FromColumns(table string, cols []schema.ColumnSpec, d Dialect) (TableDef, error) {
	if strings.TrimSpace(table) == "" {
		return TableDef{}, fmt.Errorf("%s ddl: table name must not be empty", d.Name)
	}
	defs := make([]ColumnDef, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, ColumnDef{
			Name:     c.Name,
			SQLType:  d.MapType(c.Type),
			Nullable: c.Nullable,
			Default:  DefaultSQL(c, d.BoolAsInt),
		})
	}
	return TableDef{FQN: table, Columns: defs}, nil
}

// DefaultSQL renders a column's declared default as a SQL literal, or "" when
// there is none.
func DefaultSQL(c schema.ColumnSpec, boolAsInt bool) string {
	v, ok := c.DefaultValue()
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		switch {
		case boolAsInt && x:
			return "1"
		case boolAsInt:
			return "0"
		case x:
			return "TRUE"
		default:
			return "FALSE"
		}
	}
	return "'" + strings.ReplaceAll(*c.Default, "'", "''") + "'"
}

// BuildCreateTableSQL renders t in dialect d.
//
// Each column is rendered as
//
//	<quoted name> <SQLType> [NOT NULL] [DEFAULT <expr>]
//
// and the column list is handed to d.Wrap.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s ddl: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: at least one column is required", d.Name)
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s ddl: column with empty name in table %s", d.Name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s ddl: column %s missing SQLType", d.Name, name)
		}
		var sb strings.Builder
		sb.WriteString(d.QuoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())
	}
	return d.Wrap(d.QuoteFQN(fqn), strings.Join(cols, ",\n  ")), nil
}

// IfNotExists is the Wrap used by dialects that support
// CREATE TABLE IF NOT EXISTS.
func IfNotExists(fqn, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", fqn, body)
}

// DoubleQuote quotes an identifier with double quotes, doubling embedded ones.
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
