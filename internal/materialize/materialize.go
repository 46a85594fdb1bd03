// Package materialize turns one decoded field into the value stored for a
// column. Resolve is pure: the same (field state, nullability, policy) always
// yields the same outcome.
//
// Decision table:
//
//	Present(v)                          parse v as column type, else TypeMismatch
//	PresentNull  NULL           null ok  NULL
//	PresentNull  NULL           not null NullNotAllowed
//	PresentNull  FIELD_DEFAULT           default; else NULL if nullable; else NullNotAllowed
//	PresentNull  TYPE_DEFAULT   null ok  NULL
//	PresentNull  TYPE_DEFAULT   not null type zero value
//	Absent       ERROR                   MissingField
//	Absent       NULL           null ok  NULL
//	Absent       NULL           not null MissingNotAllowed
//	Absent       FIELD_DEFAULT           default; else NULL if nullable; else MissingNotAllowed
//	Absent       TYPE_DEFAULT   null ok  NULL
//	Absent       TYPE_DEFAULT   not null type zero value
//
// A nil Value with a nil error is a stored NULL.
package materialize

import (
	"fmt"

	"ingest/internal/format"
	"ingest/internal/parser"
	"ingest/internal/schema"
)

// ErrorKind classifies a materialization failure.
type ErrorKind uint8

const (
	TypeMismatch ErrorKind = iota + 1
	NullNotAllowed
	MissingNotAllowed
	MissingField
)

func (k ErrorKind) String() string {
	switch k {
	case TypeMismatch:
		return "TypeMismatch"
	case NullNotAllowed:
		return "NullNotAllowed"
	case MissingNotAllowed:
		return "MissingNotAllowed"
	case MissingField:
		return "MissingField"
	}
	return "Unknown"
}

// Error is a row-level materialization failure for one column.
type Error struct {
	Kind    ErrorKind
	Column  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: column %q: %s", e.Kind, e.Column, e.Message)
}

// Policy is the pair of load-wide field policies.
type Policy struct {
	NullFieldAs    format.FieldPolicy
	MissingFieldAs format.FieldPolicy
}

// PolicyOf extracts the field policies of resolved format options.
func PolicyOf(o format.FileFormatOptions) Policy {
	return Policy{NullFieldAs: o.NullFieldAs, MissingFieldAs: o.MissingFieldAs}
}

// Resolve materializes f for column c.
func Resolve(c *schema.ColumnSpec, f parser.Field, p Policy) (any, *Error) {
	switch f.State {
	case parser.Present:
		return parse(c, f)
	case parser.PresentNull:
		return resolveNull(c, p.NullFieldAs)
	default:
		return resolveMissing(c, p.MissingFieldAs)
	}
}

func parse(c *schema.ColumnSpec, f parser.Field) (any, *Error) {
	var (
		v   any
		err error
	)
	if f.JSON {
		v, err = c.Type.ParseJSON(f.Value)
	} else {
		v, err = c.Type.Parse(string(f.Value))
	}
	if err != nil {
		return nil, &Error{Kind: TypeMismatch, Column: c.Name, Message: err.Error()}
	}
	return v, nil
}

func resolveNull(c *schema.ColumnSpec, p format.FieldPolicy) (any, *Error) {
	switch p {
	case format.FieldDefault:
		if v, ok := c.DefaultValue(); ok {
			return v, nil
		}
		if c.Nullable {
			return nil, nil
		}
		return nil, nullNotAllowed(c)
	case format.TypeDefault:
		if c.Nullable {
			return nil, nil
		}
		return c.Type.Zero(), nil
	default: // NULL; ERROR never reaches here
		if c.Nullable {
			return nil, nil
		}
		return nil, nullNotAllowed(c)
	}
}

func resolveMissing(c *schema.ColumnSpec, p format.FieldPolicy) (any, *Error) {
	switch p {
	case format.Null:
		if c.Nullable {
			return nil, nil
		}
		return nil, &Error{Kind: MissingNotAllowed, Column: c.Name, Message: "missing value for non-nullable column"}
	case format.FieldDefault:
		if v, ok := c.DefaultValue(); ok {
			return v, nil
		}
		if c.Nullable {
			return nil, nil
		}
		return nil, &Error{Kind: MissingNotAllowed, Column: c.Name, Message: "missing value and no default for non-nullable column"}
	case format.TypeDefault:
		if c.Nullable {
			return nil, nil
		}
		return c.Type.Zero(), nil
	default:
		return nil, &Error{Kind: MissingField, Column: c.Name, Message: "field is missing"}
	}
}

func nullNotAllowed(c *schema.ColumnSpec) *Error {
	return &Error{Kind: NullNotAllowed, Column: c.Name, Message: "null value for non-nullable column"}
}
