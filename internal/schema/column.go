package schema

import (
	"fmt"
	"strconv"
)

// ColumnSpec is a target-table column as resolved by the catalog. It is
// immutable for the duration of a load and shared read-only by all file
// tasks.
type ColumnSpec struct {
	Name     string
	Type     Type
	Nullable bool
	// Default is the declared default literal, nil when the column has none.
	Default *string
	Ordinal int

	defaultVal any
	compiled   bool
}

// NewColumnSpec builds a ColumnSpec and parses its default literal as the
// column type. A default that does not parse is an error.
func NewColumnSpec(name string, typ Type, nullable bool, def *string, ordinal int) (ColumnSpec, error) {
	c := ColumnSpec{Name: name, Type: typ, Nullable: nullable, Default: def, Ordinal: ordinal}
	if def != nil {
		v, err := typ.Parse(*def)
		if err != nil {
			return ColumnSpec{}, fmt.Errorf("column %q: default: %w", name, err)
		}
		c.defaultVal = v
	}
	c.compiled = true
	return c, nil
}

// HasDefault reports whether a default literal was declared.
func (c ColumnSpec) HasDefault() bool { return c.Default != nil }

// DefaultValue returns the typed declared default. ok is false when the
// column has no default or the literal does not parse.
func (c ColumnSpec) DefaultValue() (v any, ok bool) {
	if c.Default == nil {
		return nil, false
	}
	if c.compiled {
		return c.defaultVal, true
	}
	v, err := c.Type.Parse(*c.Default)
	if err != nil {
		return nil, false
	}
	return v, true
}

// DefaultLiteral renders a decoded config default (string, number, bool) as
// the literal text stored in ColumnSpec.Default.
func DefaultLiteral(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	default:
		s = fmt.Sprint(x)
	}
	return &s
}

// Names returns the column names in declared order.
func Names(cols []ColumnSpec) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
