// Package catalog resolves a target table name to its ordered column
// definitions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ingest/internal/config"
	"ingest/internal/schema"
)

// ErrTableNotFound is returned when the catalog has no such table.
var ErrTableNotFound = errors.New("table not found")

// ColumnResolutionError reports a column definition that cannot be turned into
// a ColumnSpec (unknown type, unparsable default).
type ColumnResolutionError struct {
	Table  string
	Column string
	Err    error
}

func (e *ColumnResolutionError) Error() string {
	return fmt.Sprintf("table %s: column %q: %v", e.Table, e.Column, e.Err)
}

func (e *ColumnResolutionError) Unwrap() error { return e.Err }

// Catalog resolves tables. Implementations must return columns in declared
// order with Ordinal set.
type Catalog interface {
	Resolve(ctx context.Context, table string) ([]schema.ColumnSpec, error)
}

// Static is an in-memory catalog keyed by lower-cased table name.
type Static struct {
	tables map[string][]schema.ColumnSpec
}

// NewStatic builds a catalog from table definitions. Every column is resolved
// up front so a bad definition fails before any file is read.
func NewStatic(tables ...config.Table) (*Static, error) {
	s := &Static{tables: make(map[string][]schema.ColumnSpec, len(tables))}
	for _, t := range tables {
		cols, err := Columns(t)
		if err != nil {
			return nil, err
		}
		s.tables[strings.ToLower(t.Name)] = cols
	}
	return s, nil
}

// Resolve returns a copy of the table's columns.
func (s *Static) Resolve(ctx context.Context, table string) ([]schema.ColumnSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cols, ok := s.tables[strings.ToLower(table)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	out := make([]schema.ColumnSpec, len(cols))
	copy(out, cols)
	return out, nil
}

// Columns converts a config table into ColumnSpecs.
func Columns(t config.Table) ([]schema.ColumnSpec, error) {
	if len(t.Columns) == 0 {
		return nil, &ColumnResolutionError{Table: t.Name, Err: errors.New("no columns")}
	}
	out := make([]schema.ColumnSpec, 0, len(t.Columns))
	seen := make(map[string]struct{}, len(t.Columns))
	for i, c := range t.Columns {
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return nil, &ColumnResolutionError{Table: t.Name, Column: c.Name, Err: errors.New("duplicate column")}
		}
		seen[key] = struct{}{}

		typ, err := schema.ParseType(c.Type)
		if err != nil {
			return nil, &ColumnResolutionError{Table: t.Name, Column: c.Name, Err: err}
		}
		spec, err := schema.NewColumnSpec(c.Name, typ, c.IsNullable(), schema.DefaultLiteral(c.Default), i)
		if err != nil {
			return nil, &ColumnResolutionError{Table: t.Name, Column: c.Name, Err: err}
		}
		out = append(out, spec)
	}
	return out, nil
}
