// Package parser defines the field-decoder contract shared by all format
// decoders: the tri-state Field, the Record yielded per input record, and the
// DecodeError used to separate record-level from stream-level failures.
//
// A Decoder is a lazy, finite, non-restartable sequence over one file:
//
//	for {
//	    rec, err := dec.Next()
//	    if err == io.EOF { break }
//	    var de *parser.DecodeError
//	    if errors.As(err, &de) { /* rejected record at de.Line; stop if de.Fatal */ }
//	    ...
//	}
//
// Fields of a Record are aligned to the target columns: Fields[i] is the
// decoded state of column i.
package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// State tags a decoded field. The zero value is Absent.
type State uint8

const (
	Absent State = iota
	PresentNull
	Present
)

func (s State) String() string {
	switch s {
	case Present:
		return "Present"
	case PresentNull:
		return "PresentNull"
	}
	return "Absent"
}

// Field is the decoded value of one column in one record. Value is only
// meaningful when State is Present. JSON marks values that are raw JSON
// encodings (structured formats) rather than plain text.
type Field struct {
	State State
	Value []byte
	JSON  bool
}

// Text returns a Present plain-text field.
func Text(b []byte) Field { return Field{State: Present, Value: b} }

// RawJSON returns a Present field holding a JSON-encoded value.
func RawJSON(b []byte) Field { return Field{State: Present, Value: b, JSON: true} }

// Null returns a PresentNull field.
func Null() Field { return Field{State: PresentNull} }

// Record is one decoded input record. Line is the 1-based line (or record
// ordinal for binary formats) where the record starts. The Fields slice and
// the byte slices it references are only valid until the next call to Next.
type Record struct {
	Line   int
	Fields []Field
}

// Decoder yields the records of one file. Next returns io.EOF after the last
// record. Any other error is a *DecodeError or a *SourceError.
type Decoder interface {
	Next() (Record, error)
}

// DecodeError is a malformed-input failure. A record-level error (Fatal=false)
// rejects one record and the sequence continues. A stream-level error
// (Fatal=true) ends the sequence; it is reported as one final rejected record
// attributed to Line, the next unread line.
type DecodeError struct {
	Line  int
	Err   error
	Fatal bool
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RecordError builds a record-level DecodeError.
func RecordError(line int, format string, args ...any) *DecodeError {
	return &DecodeError{Line: line, Err: fmt.Errorf(format, args...)}
}

// SourceError wraps a failure of the underlying byte source (network, disk).
// It is a collaborator failure, not a decode error, and is passed through by
// decoders unchanged.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return "read source: " + e.Err.Error() }

func (e *SourceError) Unwrap() error { return e.Err }

// StreamError classifies a read error at line: source failures are returned
// as-is and everything else becomes a fatal DecodeError.
func StreamError(line int, err error) error {
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Line: line, Err: err, Fatal: true}
}

// ColumnIndex resolves field keys to column ordinals for structured formats:
// an exact match wins, then a case-insensitive one.
type ColumnIndex struct {
	names []string
	exact map[string]int
	fold  map[string]int
}

// NewColumnIndex indexes the column names in declared order.
func NewColumnIndex(columns []string) *ColumnIndex {
	ix := &ColumnIndex{
		names: columns,
		exact: make(map[string]int, len(columns)),
		fold:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		ix.exact[c] = i
		k := strings.ToLower(c)
		if _, dup := ix.fold[k]; !dup {
			ix.fold[k] = i
		}
	}
	return ix
}

// Lookup returns the ordinal for key, or -1. exact reports whether the
// match was case-sensitive.
func (ix *ColumnIndex) Lookup(key string) (ord int, exact bool) {
	if i, ok := ix.exact[key]; ok {
		return i, true
	}
	if i, ok := ix.fold[strings.ToLower(key)]; ok {
		return i, false
	}
	return -1, false
}

// KeyMatcher assigns the keys of one structured record to columns. Keys may
// arrive in any order: an exact key always wins, and two or more
// case-insensitive keys for a column without an exact key make the record
// ambiguous.
type KeyMatcher struct {
	ix    *ColumnIndex
	exact []bool
	folds [][]string
}

// NewKeyMatcher returns a matcher over ix.
func NewKeyMatcher(ix *ColumnIndex) *KeyMatcher {
	return &KeyMatcher{
		ix:    ix,
		exact: make([]bool, len(ix.names)),
		folds: make([][]string, len(ix.names)),
	}
}

// Reset prepares the matcher for the next record.
func (m *KeyMatcher) Reset() {
	for i := range m.exact {
		m.exact[i] = false
		m.folds[i] = m.folds[i][:0]
	}
}

// Claim returns the column ordinal key should populate, ok is false when the
// key maps to no column or is shadowed by an exact key already seen.
func (m *KeyMatcher) Claim(key string) (ord int, ok bool) {
	ord, exact := m.ix.Lookup(key)
	if ord < 0 {
		return -1, false
	}
	if exact {
		m.exact[ord] = true
		return ord, true
	}
	m.folds[ord] = append(m.folds[ord], key)
	return ord, !m.exact[ord]
}

// Ambiguity reports the first column, in declared order, that matched more
// than one key case-insensitively and none exactly. It is nil otherwise.
func (m *KeyMatcher) Ambiguity() error {
	for i, keys := range m.folds {
		if m.exact[i] || len(keys) < 2 {
			continue
		}
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		return fmt.Errorf("ambiguous keys %s for column %q", strings.Join(sorted, ", "), m.ix.names[i])
	}
	return nil
}
