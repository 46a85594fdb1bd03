// Package csv implements the delimited-text field decoder used for CSV and
// TSV loads. It streams records from an io.Reader without buffering the file
// and maps fields to target columns by position.
//
// Unlike encoding/csv, the reader keeps track of whether a field was quoted,
// so a quoted empty value ("") stays an empty string while an unquoted empty
// value may be treated as null. Field states:
//
//	quoted                       -> Present(value)
//	unquoted == null_display     -> PresentNull
//	unquoted empty               -> PresentNull if empty_field_as=null, else Present("")
//	missing trailing field       -> Absent
//
// A record with more fields than target columns is rejected. An unterminated
// quote at end of input is a stream-level error.
package csv

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"ingest/internal/format"
	"ingest/internal/parser"
)

// Decoder reads delimited records. It is not safe for concurrent use.
type Decoder struct {
	br   *bufio.Reader
	opts format.FileFormatOptions
	ncol int

	line    int // physical lines consumed
	skipped int
	done    bool

	buf    []byte
	ends   []int
	quoted []bool
	fields []parser.Field
}

// NewDecoder returns a decoder for ncol target columns.
func NewDecoder(r io.Reader, ncol int, opts format.FileFormatOptions) *Decoder {
	return &Decoder{
		br:     bufio.NewReaderSize(r, 64*1024),
		opts:   opts,
		ncol:   ncol,
		buf:    make([]byte, 0, 4096),
		fields: make([]parser.Field, ncol),
	}
}

// Next implements parser.Decoder.
func (d *Decoder) Next() (parser.Record, error) {
	if d.done {
		return parser.Record{}, io.EOF
	}
	for d.skipped < d.opts.SkipHeader {
		_, err := d.readRecord()
		if err != nil && !isRecordErr(err) {
			d.done = true
			return parser.Record{}, err
		}
		d.skipped++
	}

	start, err := d.readRecord()
	if err != nil {
		if !isRecordErr(err) {
			d.done = true
		}
		return parser.Record{}, err
	}

	n := len(d.ends)
	if n > d.ncol {
		return parser.Record{}, parser.RecordError(start,
			"field count mismatch: expected %d fields, got %d", d.ncol, n)
	}
	begin := 0
	for i := 0; i < d.ncol; i++ {
		if i >= n {
			d.fields[i] = parser.Field{}
			continue
		}
		raw := d.buf[begin:d.ends[i]]
		begin = d.ends[i]
		d.fields[i] = d.field(raw, d.quoted[i])
	}
	return parser.Record{Line: start, Fields: d.fields}, nil
}

func (d *Decoder) field(raw []byte, quoted bool) parser.Field {
	if quoted {
		return parser.Text(raw)
	}
	if d.opts.TrimSpace {
		raw = bytes.TrimSpace(raw)
	}
	if d.opts.NullDisplay != "" && string(raw) == d.opts.NullDisplay {
		return parser.Null()
	}
	if len(raw) == 0 {
		if d.opts.EmptyFieldAsNull {
			return parser.Null()
		}
		return parser.Text(raw)
	}
	if d.opts.Quote == 0 && bytes.IndexByte(raw, '\\') >= 0 {
		return parser.Text(unescape(raw))
	}
	return parser.Text(raw)
}

func isRecordErr(err error) bool {
	var de *parser.DecodeError
	return errors.As(err, &de) && !de.Fatal
}

type scanState uint8

const (
	fieldStart scanState = iota
	inUnquoted
	inQuoted
	afterQuote
)

// readRecord scans one record into d.buf/d.ends/d.quoted and returns the line
// it started on. Blank lines are skipped.
func (d *Decoder) readRecord() (int, error) {
	for {
		start, err := d.scan()
		if err != nil {
			return start, err
		}
		if len(d.ends) == 1 && d.ends[0] == 0 && !d.quoted[0] {
			continue // blank line
		}
		return start, nil
	}
}

func (d *Decoder) scan() (int, error) {
	d.buf = d.buf[:0]
	d.ends = d.ends[:0]
	d.quoted = d.quoted[:0]

	start := d.line + 1
	state := fieldStart
	sawAny := false
	quoted := false
	var bad error

	endField := func(atEOL bool) {
		if atEOL && state == inUnquoted && len(d.buf) > 0 && d.buf[len(d.buf)-1] == '\r' {
			d.buf = d.buf[:len(d.buf)-1]
		}
		d.ends = append(d.ends, len(d.buf))
		d.quoted = append(d.quoted, quoted)
		quoted = false
	}
	// invalid holds the line of the first byte that is not valid UTF-8. The
	// record is still scanned to its end so quoted newlines stay aligned.
	invalid := 0
	finish := func() (int, error) {
		if invalid > 0 {
			return start, parser.RecordError(start, "invalid utf-8 on line %d", invalid)
		}
		return start, nil
	}

	for {
		r, size, err := d.br.ReadRune()
		if err == io.EOF {
			if !sawAny {
				return start, io.EOF
			}
			if state == inQuoted {
				return start, &parser.DecodeError{Line: start, Err: fmt.Errorf("unterminated quoted field"), Fatal: true}
			}
			if bad != nil {
				return start, parser.RecordError(start, "%v", bad)
			}
			endField(true)
			return finish()
		}
		if err != nil {
			return start, parser.StreamError(start, err)
		}
		sawAny = true
		if r == utf8.RuneError && size == 1 && invalid == 0 {
			invalid = d.line + 1
		}

		if bad != nil {
			// Skip the rest of a malformed record.
			if r == '\n' {
				d.line++
				return start, parser.RecordError(start, "%v", bad)
			}
			continue
		}

		switch state {
		case fieldStart:
			if d.opts.Quote != 0 && r == d.opts.Quote {
				state = inQuoted
				quoted = true
				continue
			}
			state = inUnquoted
			fallthrough
		case inUnquoted:
			switch {
			case r == d.opts.Delimiter:
				endField(false)
				state = fieldStart
			case r == '\n':
				d.line++
				endField(true)
				return finish()
			case r == '\\' && d.opts.Quote == 0:
				d.buf = append(d.buf, '\\')
				nr, nsize, err := d.br.ReadRune()
				if err == io.EOF {
					continue
				}
				if err != nil {
					return start, parser.StreamError(start, err)
				}
				if nr == utf8.RuneError && nsize == 1 && invalid == 0 {
					invalid = d.line + 1
				}
				if nr == '\n' {
					d.line++
				}
				d.buf = utf8.AppendRune(d.buf, nr)
			default:
				d.buf = utf8.AppendRune(d.buf, r)
			}
		case inQuoted:
			if r == d.opts.Quote {
				state = afterQuote
				continue
			}
			if r == '\n' {
				d.line++
			}
			d.buf = utf8.AppendRune(d.buf, r)
		case afterQuote:
			switch {
			case r == d.opts.Quote:
				d.buf = utf8.AppendRune(d.buf, r)
				state = inQuoted
			case r == d.opts.Delimiter:
				endField(false)
				state = fieldStart
			case r == '\r':
			case r == '\n':
				d.line++
				endField(true)
				return finish()
			default:
				bad = fmt.Errorf("unexpected %q after closing quote", r)
			}
		}
	}
}

// unescape resolves backslash escapes of TSV fields.
func unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\\' || i+1 == len(b) {
			out = append(out, c)
			continue
		}
		i++
		switch b[i] {
		case 't':
			out = append(out, '\t')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		default:
			out = append(out, b[i])
		}
	}
	return out
}
