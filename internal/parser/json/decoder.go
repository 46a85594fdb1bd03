// Package json implements the line-delimited JSON (NDJSON) field decoder.
//
// Each non-blank line must hold one JSON object. Keys are matched to target
// columns by name (exact match first, then case-insensitive):
//
//	key missing            -> Absent
//	key present, null      -> PresentNull
//	key present, any value -> Present(raw JSON)
//
// Lines that are not JSON objects are rejected individually; the rest of the
// file keeps decoding.
package json

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	gojson "github.com/goccy/go-json"

	"ingest/internal/parser"
)

var jsonNull = []byte("null")

// Decoder reads NDJSON records. It is not safe for concurrent use.
type Decoder struct {
	br   *bufio.Reader
	ncol int
	line int
	done bool

	long   []byte
	fields []parser.Field
	keys   *parser.KeyMatcher
	obj    map[string]gojson.RawMessage
}

// NewDecoder returns a decoder producing fields for columns in declared order.
func NewDecoder(r io.Reader, columns []string) *Decoder {
	return &Decoder{
		br:     bufio.NewReaderSize(r, 64*1024),
		ncol:   len(columns),
		fields: make([]parser.Field, len(columns)),
		keys:   parser.NewKeyMatcher(parser.NewColumnIndex(columns)),
	}
}

// Next implements parser.Decoder.
func (d *Decoder) Next() (parser.Record, error) {
	for {
		if d.done {
			return parser.Record{}, io.EOF
		}
		raw, err := d.readLine()
		if err != nil && err != io.EOF {
			d.done = true
			return parser.Record{}, parser.StreamError(d.line+1, err)
		}
		if err == io.EOF {
			d.done = true
			if len(raw) == 0 {
				return parser.Record{}, io.EOF
			}
		}
		d.line++
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			return parser.Record{}, parser.RecordError(d.line, "expected a JSON object")
		}
		clear(d.obj)
		if err := gojson.Unmarshal(line, &d.obj); err != nil {
			return parser.Record{}, parser.RecordError(d.line, "invalid JSON: %v", err)
		}
		clear(d.fields)
		d.keys.Reset()
		for k, v := range d.obj {
			ord, ok := d.keys.Claim(k)
			if !ok {
				continue
			}
			if bytes.Equal(v, jsonNull) {
				d.fields[ord] = parser.Null()
			} else {
				d.fields[ord] = parser.RawJSON(v)
			}
		}
		if err := d.keys.Ambiguity(); err != nil {
			return parser.Record{}, parser.RecordError(d.line, "%v", err)
		}
		return parser.Record{Line: d.line, Fields: d.fields}, nil
	}
}

// readLine returns the next line without its terminator. Lines longer than
// the reader buffer are accumulated in d.long.
func (d *Decoder) readLine() ([]byte, error) {
	b, err := d.br.ReadSlice('\n')
	if err == nil {
		return b[:len(b)-1], nil
	}
	if !errors.Is(err, bufio.ErrBufferFull) {
		return b, err
	}
	d.long = append(d.long[:0], b...)
	for {
		b, err = d.br.ReadSlice('\n')
		d.long = append(d.long, b...)
		if err == nil {
			return d.long[:len(d.long)-1], nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return d.long, err
		}
	}
}
