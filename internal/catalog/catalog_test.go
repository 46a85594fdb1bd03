package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/config"
	"ingest/internal/schema"
)

func bptr(b bool) *bool { return &b }

func ordersTable() config.Table {
	return config.Table{
		Name: "public.orders",
		Columns: []config.Column{
			{Name: "id", Type: "string"},
			{Name: "a", Type: "int", Default: 2.0},
			{Name: "b", Type: "int", Nullable: bptr(false), Default: "2"},
		},
	}
}

func TestStatic_Resolve(t *testing.T) {
	c, err := NewStatic(ordersTable())
	require.NoError(t, err)

	cols, err := c.Resolve(context.Background(), "PUBLIC.Orders")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, []string{"id", "a", "b"}, schema.Names(cols))
	assert.True(t, cols[0].Nullable)
	assert.False(t, cols[2].Nullable)
	assert.Equal(t, 2, cols[2].Ordinal)

	v, ok := cols[1].DefaultValue()
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
	assert.False(t, cols[0].HasDefault())
}

func TestStatic_TableNotFound(t *testing.T) {
	c, err := NewStatic(ordersTable())
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestColumns_ResolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		cols []config.Column
		col  string
	}{
		{"unknown type", []config.Column{{Name: "x", Type: "geometry"}}, "x"},
		{"bad default", []config.Column{{Name: "n", Type: "int", Default: "abc"}}, "n"},
		{"duplicate", []config.Column{{Name: "a", Type: "int"}, {Name: "A", Type: "int"}}, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Columns(config.Table{Name: "t", Columns: tt.cols})
			var cre *ColumnResolutionError
			require.True(t, errors.As(err, &cre), "got %v", err)
			assert.Equal(t, tt.col, cre.Column)
		})
	}
}
