// Package schema describes target-table columns and the closed set of column
// types a load can materialize into. A Type knows how to parse raw field text
// into its Go value and what its intrinsic zero value is.
//
// Go values produced by Parse:
//
//	String            string
//	Int8..Int64       int64
//	UInt8..UInt64     uint64
//	Float32, Float64  float64
//	Boolean           bool
//	Date, Timestamp   time.Time (UTC; dates at midnight)
//	Variant           json.RawMessage
package schema

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Type is a column type.
type Type int

const (
	String Type = iota + 1
	Int8
	Int16
	Int32
	Int64
	UInt8
	UInt16
	UInt32
	UInt64
	Float32
	Float64
	Boolean
	Date
	Timestamp
	Variant
)

var typeNames = map[Type]string{
	String:    "String",
	Int8:      "Int8",
	Int16:     "Int16",
	Int32:     "Int32",
	Int64:     "Int64",
	UInt8:     "UInt8",
	UInt16:    "UInt16",
	UInt32:    "UInt32",
	UInt64:    "UInt64",
	Float32:   "Float32",
	Float64:   "Float64",
	Boolean:   "Boolean",
	Date:      "Date",
	Timestamp: "Timestamp",
	Variant:   "Variant",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// ParseType maps SQL-ish type names to a Type, case-insensitively.
func ParseType(name string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i > 0 {
		n = strings.TrimSpace(n[:i]) // varchar(255) -> varchar
	}
	n = strings.Join(strings.Fields(n), " ")
	switch n {
	case "string", "varchar", "text", "char", "nvarchar", "character varying":
		return String, nil
	case "int8", "tinyint":
		return Int8, nil
	case "int16", "smallint":
		return Int16, nil
	case "int32", "int", "integer":
		return Int32, nil
	case "int64", "bigint":
		return Int64, nil
	case "uint8", "tinyint unsigned":
		return UInt8, nil
	case "uint16", "smallint unsigned":
		return UInt16, nil
	case "uint32", "int unsigned", "integer unsigned":
		return UInt32, nil
	case "uint64", "bigint unsigned":
		return UInt64, nil
	case "float32", "float", "real":
		return Float32, nil
	case "float64", "double", "double precision":
		return Float64, nil
	case "boolean", "bool":
		return Boolean, nil
	case "date":
		return Date, nil
	case "timestamp", "datetime", "timestamptz":
		return Timestamp, nil
	case "variant", "json", "jsonb":
		return Variant, nil
	}
	return 0, fmt.Errorf("unsupported column type %q", name)
}

func (t Type) bits() int {
	switch t {
	case Int8, UInt8:
		return 8
	case Int16, UInt16:
		return 16
	case Int32, UInt32, Float32:
		return 32
	}
	return 64
}

// Parse converts raw field text into the column's Go value.
func (t Type) Parse(s string) (any, error) {
	switch t {
	case String:
		return s, nil
	case Int8, Int16, Int32, Int64:
		v, ok := toInt(s, t.bits())
		if !ok {
			return nil, fmt.Errorf("cannot parse %q as %s", s, t)
		}
		return v, nil
	case UInt8, UInt16, UInt32, UInt64:
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, t.bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s", s, t)
		}
		return v, nil
	case Float32, Float64:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), t.bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s", s, t)
		}
		return v, nil
	case Boolean:
		v, ok := toBool(s)
		if !ok {
			return nil, fmt.Errorf("cannot parse %q as %s", s, t)
		}
		return v, nil
	case Date:
		v, ok := parseDate(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("cannot parse %q as %s", s, t)
		}
		return v, nil
	case Timestamp:
		v, ok := parseTimestamp(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("cannot parse %q as %s", s, t)
		}
		return v, nil
	case Variant:
		b := []byte(s)
		if !json.Valid(b) {
			return nil, fmt.Errorf("cannot parse %q as %s: invalid JSON", s, t)
		}
		return json.RawMessage(b), nil
	}
	return nil, fmt.Errorf("unsupported column type %d", int(t))
}

// ParseJSON converts a raw JSON value (as found in a structured record) into
// the column's Go value. JSON strings are unquoted before parsing except for
// Variant columns, which keep the raw document.
func (t Type) ParseJSON(raw []byte) (any, error) {
	if t == Variant {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("invalid JSON for %s", t)
		}
		return json.RawMessage(bytes.Clone(raw)), nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid JSON string: %w", err)
		}
		return t.Parse(s)
	}
	if t != String && len(raw) > 0 && (raw[0] == '{' || raw[0] == '[') {
		return nil, fmt.Errorf("cannot parse %s as %s", abbrev(raw), t)
	}
	return t.Parse(string(raw))
}

// Zero returns the type's intrinsic zero value.
func (t Type) Zero() any {
	switch t {
	case String:
		return ""
	case Int8, Int16, Int32, Int64:
		return int64(0)
	case UInt8, UInt16, UInt32, UInt64:
		return uint64(0)
	case Float32, Float64:
		return float64(0)
	case Boolean:
		return false
	case Date, Timestamp:
		return time.Unix(0, 0).UTC()
	case Variant:
		return json.RawMessage("null")
	}
	return nil
}

// --- helpers -------------------------------------------------------------------

// toInt parses integers and only falls back to float parsing when the field
// contains a '.' (inputs like "42.0").
func toInt(s string, bits int) (int64, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, bits); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			i := int64(f)
			lim := int64(1) << (bits - 1)
			if bits == 64 || (i >= -lim && i < lim) {
				return i, true
			}
		}
	}
	return 0, false
}

func toBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, true
	case "0", "f", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

// parseDate handles YYYY-MM-DD without time.Parse, then falls back to a
// timestamp truncated to midnight.
func parseDate(s string) (time.Time, bool) {
	if len(s) == 10 && s[4] == '-' && s[7] == '-' {
		y, ok1 := digits(s[0:4])
		m, ok2 := digits(s[5:7])
		d, ok3 := digits(s[8:10])
		if !ok1 || !ok2 || !ok3 || m < 1 || m > 12 || d < 1 || d > 31 {
			return time.Time{}, false
		}
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		if t.Day() != d {
			return time.Time{}, false // 2024-02-30
		}
		return t, true
	}
	if ts, ok := parseTimestamp(s); ok {
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i] - '0'
		if c > 9 {
			return 0, false
		}
		n = n*10 + int(c)
	}
	return n, true
}

func abbrev(b []byte) string {
	if len(b) > 32 {
		return string(b[:32]) + "..."
	}
	return string(b)
}
