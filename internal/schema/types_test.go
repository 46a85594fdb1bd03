package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"string":           String,
		"VARCHAR(255)":     String,
		"int":              Int32,
		"bigint":           Int64,
		"tinyint unsigned": UInt8,
		"double":           Float64,
		"Double Precision": Float64,
		"bool":             Boolean,
		"date":             Date,
		"datetime":         Timestamp,
		"json":             Variant,
	}
	for in, want := range tests {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseType("geometry")
	assert.Error(t, err)
}

/*
TestTypeParse covers the accepted and rejected inputs per type, including
width range checks and the float fallback for integral values like "42.0".
*/
func TestTypeParse(t *testing.T) {
	ok := []struct {
		typ  Type
		in   string
		want any
	}{
		{String, " x ", " x "},
		{Int32, "42", int64(42)},
		{Int32, "42.0", int64(42)},
		{Int8, "-128", int64(-128)},
		{UInt16, "65535", uint64(65535)},
		{Float64, "1.5", 1.5},
		{Boolean, "YES", true},
		{Boolean, "0", false},
		{Date, "2024-02-29", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{Date, "2024-02-29T13:00:00Z", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{Timestamp, "2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Timestamp, "2024-01-02T03:04:05+01:00", time.Date(2024, 1, 2, 2, 4, 5, 0, time.UTC)},
		{Variant, `{"a":1}`, json.RawMessage(`{"a":1}`)},
	}
	for _, tc := range ok {
		got, err := tc.typ.Parse(tc.in)
		require.NoError(t, err, "%s %q", tc.typ, tc.in)
		assert.Equal(t, tc.want, got, "%s %q", tc.typ, tc.in)
	}

	bad := []struct {
		typ Type
		in  string
	}{
		{Int32, ""},
		{Int32, "abc"},
		{Int8, "128"},
		{Int8, "200.0"},
		{Int32, "1.5"},
		{UInt8, "-1"},
		{Float32, "x"},
		{Boolean, "maybe"},
		{Date, "2024-02-30"},
		{Date, "30.02.2024"},
		{Timestamp, "noon"},
		{Variant, "{oops"},
	}
	for _, tc := range bad {
		_, err := tc.typ.Parse(tc.in)
		assert.Error(t, err, "%s %q", tc.typ, tc.in)
	}
}

func TestTypeParseJSON(t *testing.T) {
	v, err := Int64.ParseJSON([]byte(`7`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = Int64.ParseJSON([]byte(`"7"`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = String.ParseJSON([]byte(`"a\"b"`))
	require.NoError(t, err)
	assert.Equal(t, `a"b`, v)

	v, err = String.ParseJSON([]byte(`{"k":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, v)

	v, err = Variant.ParseJSON([]byte(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`[1,2]`), v)

	v, err = Boolean.ParseJSON([]byte(`true`))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = Int64.ParseJSON([]byte(`[1]`))
	assert.Error(t, err)
}

func TestTypeZero(t *testing.T) {
	assert.Equal(t, "", String.Zero())
	assert.Equal(t, int64(0), Int16.Zero())
	assert.Equal(t, uint64(0), UInt64.Zero())
	assert.Equal(t, float64(0), Float32.Zero())
	assert.Equal(t, false, Boolean.Zero())
	assert.Equal(t, time.Unix(0, 0).UTC(), Date.Zero())
	assert.Equal(t, json.RawMessage("null"), Variant.Zero())
}

func TestColumnSpecDefault(t *testing.T) {
	c, err := NewColumnSpec("a", Int32, true, DefaultLiteral(float64(2)), 1)
	require.NoError(t, err)
	v, ok := c.DefaultValue()
	require.True(t, ok)
	assert.Equal(t, int64(2), v)

	_, err = NewColumnSpec("a", Int32, true, DefaultLiteral("two"), 1)
	assert.Error(t, err)

	none := ColumnSpec{Name: "x", Type: String, Nullable: true}
	_, ok = none.DefaultValue()
	assert.False(t, ok)
	assert.False(t, none.HasDefault())

	lit := ColumnSpec{Name: "y", Type: Boolean, Default: DefaultLiteral(true)}
	v, ok = lit.DefaultValue()
	require.True(t, ok)
	assert.Equal(t, true, v)

	assert.Nil(t, DefaultLiteral(nil))
	assert.Equal(t, "1.5", *DefaultLiteral(1.5))
	assert.Equal(t, []string{"a", "y"}, Names([]ColumnSpec{c, lit}))
}
