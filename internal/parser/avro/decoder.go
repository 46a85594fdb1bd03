// Package avro implements the field decoder for Avro object container files.
//
// The writer schema must be a record. Top-level record fields are matched to
// target columns by name (exact, then case-insensitive). Union values are
// unwrapped, primitives are rendered as text, and nested records, arrays and
// maps are JSON-encoded. The record ordinal (1-based) stands in for the line
// number.
package avro

import (
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"ingest/internal/parser"
)

// Decoder reads records from an Avro OCF stream.
type Decoder struct {
	ocf    *goavro.OCFReader
	unions map[string]bool
	n      int
	done   bool
	fields []parser.Field
	keys   *parser.KeyMatcher
	// claimed holds the record key chosen for each column, "" for none.
	claimed []string
}

// NewDecoder reads the container header. A malformed header is a fatal
// decode error.
func NewDecoder(r io.Reader, columns []string) (*Decoder, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, parser.StreamError(1, fmt.Errorf("avro header: %w", err))
	}
	return &Decoder{
		ocf:     ocf,
		unions:  unionFields(ocf.Codec().Schema()),
		fields:  make([]parser.Field, len(columns)),
		keys:    parser.NewKeyMatcher(parser.NewColumnIndex(columns)),
		claimed: make([]string, len(columns)),
	}, nil
}

// Next implements parser.Decoder.
func (d *Decoder) Next() (parser.Record, error) {
	if d.done {
		return parser.Record{}, io.EOF
	}
	if !d.ocf.Scan() {
		d.done = true
		if err := d.ocf.Err(); err != nil {
			return parser.Record{}, parser.StreamError(d.n+1, err)
		}
		return parser.Record{}, io.EOF
	}
	datum, err := d.ocf.Read()
	d.n++
	if err != nil {
		d.done = true
		return parser.Record{}, parser.StreamError(d.n, err)
	}
	rec, ok := datum.(map[string]any)
	if !ok {
		return parser.Record{}, parser.RecordError(d.n, "expected an avro record, got %T", datum)
	}
	clear(d.fields)
	clear(d.claimed)
	d.keys.Reset()
	for k := range rec {
		if ord, ok := d.keys.Claim(k); ok {
			d.claimed[ord] = k
		}
	}
	if err := d.keys.Ambiguity(); err != nil {
		return parser.Record{}, parser.RecordError(d.n, "%v", err)
	}
	for ord, k := range d.claimed {
		if k == "" {
			continue
		}
		v := rec[k]
		if d.unions[k] {
			v = unwrapUnion(v)
		}
		f, err := toField(v)
		if err != nil {
			return parser.Record{}, parser.RecordError(d.n, "field %q: %v", k, err)
		}
		d.fields[ord] = f
	}
	return parser.Record{Line: d.n, Fields: d.fields}, nil
}

// unionFields reports which top-level fields of a record schema are unions.
func unionFields(schema string) map[string]bool {
	var s struct {
		Fields []struct {
			Name string          `json:"name"`
			Type gojson.RawMessage `json:"type"`
		} `json:"fields"`
	}
	out := map[string]bool{}
	if err := gojson.Unmarshal([]byte(schema), &s); err != nil {
		return out
	}
	for _, f := range s.Fields {
		t := strings.TrimSpace(string(f.Type))
		out[f.Name] = strings.HasPrefix(t, "[")
	}
	return out
}

// unwrapUnion turns goavro's {"type": value} union encoding into value.
func unwrapUnion(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}

func toField(v any) (parser.Field, error) {
	switch x := v.(type) {
	case nil:
		return parser.Null(), nil
	case string:
		return parser.Text([]byte(x)), nil
	case []byte:
		return parser.Text(x), nil
	case bool:
		return parser.Text(strconv.AppendBool(nil, x)), nil
	case int32:
		return parser.Text(strconv.AppendInt(nil, int64(x), 10)), nil
	case int64:
		return parser.Text(strconv.AppendInt(nil, x, 10)), nil
	case int:
		return parser.Text(strconv.AppendInt(nil, int64(x), 10)), nil
	case float32:
		return parser.Text(strconv.AppendFloat(nil, float64(x), 'g', -1, 32)), nil
	case float64:
		return parser.Text(strconv.AppendFloat(nil, x, 'g', -1, 64)), nil
	case time.Time:
		return parser.Text([]byte(x.UTC().Format(time.RFC3339Nano))), nil
	case time.Duration:
		return parser.Text(strconv.AppendInt(nil, x.Microseconds(), 10)), nil
	case *big.Rat:
		return parser.Text([]byte(ratString(x))), nil
	default:
		b, err := gojson.Marshal(x)
		if err != nil {
			return parser.Field{}, err
		}
		return parser.RawJSON(b), nil
	}
}

func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
