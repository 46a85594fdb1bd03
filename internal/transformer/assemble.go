package transformer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"ingest/internal/materialize"
	"ingest/internal/parser"
	"ingest/internal/schema"
)

// Rejection describes a record that produced no row. Column is the ordinal of
// the first failing column, or -1 when the record could not be decoded.
type Rejection struct {
	Line    int
	Column  int
	Message string
	// Fatal marks a stream-level decode error; no further records follow.
	Fatal bool
}

// Outcome is the result of assembling one record: exactly one of Row and
// Rejected is set.
type Outcome struct {
	Row      *Row
	Rejected *Rejection
}

// Accepted reports whether the record produced a row.
func (o Outcome) Accepted() bool { return o.Row != nil }

// Assemble materializes rec against cols in declared order. The first failing
// column rejects the whole record; no partial row escapes.
func Assemble(cols []schema.ColumnSpec, rec parser.Record, p materialize.Policy) Outcome {
	row := GetRow(len(cols))
	for i := range cols {
		var f parser.Field
		if i < len(rec.Fields) {
			f = rec.Fields[i]
		}
		v, err := materialize.Resolve(&cols[i], f, p)
		if err != nil {
			row.Free()
			return Outcome{Rejected: &Rejection{
				Line:    rec.Line,
				Column:  i,
				Message: err.Error(),
			}}
		}
		row.V[i] = v
	}
	row.Line = rec.Line
	return Outcome{Row: row}
}

// RejectDecode converts a decode error into a rejection.
func RejectDecode(de *parser.DecodeError) Outcome {
	return Outcome{Rejected: &Rejection{
		Line:    de.Line,
		Column:  -1,
		Message: fmt.Sprintf("decode error: %v", de.Err),
		Fatal:   de.Fatal,
	}}
}

// Observer is told about every outcome of a file, in input order.
type Observer interface {
	Accepted(line int)
	// Rejected records r and reports whether the file should keep going.
	Rejected(r Rejection) bool
}

// Admitter is an optional Observer extension. Admit is asked before every
// accepted row is forwarded; false ends the file without forwarding it.
type Admitter interface {
	Admit() bool
}

// AssembleLoop pulls records from dec, assembles them and forwards accepted
// rows to out. Sending blocks when out is full, which throttles decoding to
// the pace of the write path.
//
// It returns nil when the stream ends or obs asks to stop, ctx.Err() on
// cancellation, and the source error when the underlying stream fails.
// Rows that cannot be handed off are returned to the pool.
func AssembleLoop(
	ctx context.Context,
	dec parser.Decoder,
	cols []schema.ColumnSpec,
	p materialize.Policy,
	out chan<- *Row,
	obs Observer,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		var o Outcome
		if err != nil {
			var de *parser.DecodeError
			if !errors.As(err, &de) {
				return err
			}
			o = RejectDecode(de)
		} else {
			o = Assemble(cols, rec, p)
		}

		if !o.Accepted() {
			if !obs.Rejected(*o.Rejected) || o.Rejected.Fatal {
				return nil
			}
			continue
		}

		if a, ok := obs.(Admitter); ok && !a.Admit() {
			o.Row.Free()
			return nil
		}
		line := o.Row.Line
		select {
		case out <- o.Row:
			obs.Accepted(line)
		case <-ctx.Done():
			o.Row.Free()
			return ctx.Err()
		}
	}
}
