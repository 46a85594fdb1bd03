package transformer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/format"
	"ingest/internal/materialize"
	"ingest/internal/parser"
	"ingest/internal/schema"
)

// sliceDecoder replays canned results.
type sliceDecoder struct {
	items []any // parser.Record or error
	i     int
}

func (d *sliceDecoder) Next() (parser.Record, error) {
	if d.i >= len(d.items) {
		return parser.Record{}, io.EOF
	}
	it := d.items[d.i]
	d.i++
	if err, ok := it.(error); ok {
		return parser.Record{}, err
	}
	return it.(parser.Record), nil
}

type recordingObserver struct {
	accepted []int
	rejected []Rejection
	stopOn   int // stop after this many rejections; 0 = never
}

func (o *recordingObserver) Accepted(line int) { o.accepted = append(o.accepted, line) }
func (o *recordingObserver) Rejected(r Rejection) bool {
	o.rejected = append(o.rejected, r)
	return o.stopOn == 0 || len(o.rejected) < o.stopOn
}

func lit(s string) *string { return &s }

// scenarioColumns is (id string, a int default 2, b int not null default 2).
func scenarioColumns(t *testing.T) []schema.ColumnSpec {
	t.Helper()
	id, err := schema.NewColumnSpec("id", schema.String, true, nil, 0)
	require.NoError(t, err)
	a, err := schema.NewColumnSpec("a", schema.Int32, true, lit("2"), 1)
	require.NoError(t, err)
	b, err := schema.NewColumnSpec("b", schema.Int32, false, lit("2"), 2)
	require.NoError(t, err)
	return []schema.ColumnSpec{id, a, b}
}

func txt(s string) parser.Field { return parser.Text([]byte(s)) }

/*
TestAssemble_Scenario: under null_field_as=NULL, missing_field_as=FIELD_DEFAULT
a present-null b is rejected (non-nullable) while a missing a is accepted with
the declared default.
*/
func TestAssemble_Scenario(t *testing.T) {
	cols := scenarioColumns(t)
	p := materialize.Policy{NullFieldAs: format.Null, MissingFieldAs: format.FieldDefault}

	rej := Assemble(cols, parser.Record{Line: 1, Fields: []parser.Field{txt("x"), txt("1"), parser.Null()}}, p)
	require.False(t, rej.Accepted())
	assert.Equal(t, 1, rej.Rejected.Line)
	assert.Equal(t, 2, rej.Rejected.Column)
	assert.Contains(t, rej.Rejected.Message, "NullNotAllowed")

	acc := Assemble(cols, parser.Record{Line: 2, Fields: []parser.Field{txt("y"), {}, txt("5")}}, p)
	require.True(t, acc.Accepted())
	defer acc.Row.Free()
	assert.Equal(t, []any{"y", int64(2), int64(5)}, acc.Row.V)
	assert.Equal(t, 2, acc.Row.Line)
}

/*
TestAssemble_MissingFieldErrorEvenIfNullable: with missing_field_as=ERROR any
missing field rejects the record, even for a nullable column.
*/
func TestAssemble_MissingFieldErrorEvenIfNullable(t *testing.T) {
	cols := scenarioColumns(t)
	p := materialize.Policy{NullFieldAs: format.Null, MissingFieldAs: format.Error}
	o := Assemble(cols, parser.Record{Line: 4, Fields: []parser.Field{txt("x")}}, p)
	require.False(t, o.Accepted())
	assert.Equal(t, 1, o.Rejected.Column)
	assert.Contains(t, o.Rejected.Message, "MissingField")
}

func TestAssemble_FirstFailingColumnWins(t *testing.T) {
	cols := scenarioColumns(t)
	p := materialize.Policy{NullFieldAs: format.Null, MissingFieldAs: format.Error}
	o := Assemble(cols, parser.Record{Line: 1, Fields: []parser.Field{txt("x"), txt("bad"), parser.Null()}}, p)
	require.False(t, o.Accepted())
	assert.Equal(t, 1, o.Rejected.Column)
	assert.Contains(t, o.Rejected.Message, "TypeMismatch")
}

/*
TestAssembleLoop_OrderAndStop verifies strict input order of observations,
that decode errors become rejections with Column=-1, and that the loop stops
as soon as the observer asks it to.
*/
func TestAssembleLoop_OrderAndStop(t *testing.T) {
	cols := scenarioColumns(t)
	p := materialize.Policy{NullFieldAs: format.Null, MissingFieldAs: format.FieldDefault}
	dec := &sliceDecoder{items: []any{
		parser.Record{Line: 1, Fields: []parser.Field{txt("a"), txt("1"), txt("1")}},
		parser.RecordError(2, "field count mismatch"),
		parser.Record{Line: 3, Fields: []parser.Field{txt("b"), txt("2"), txt("2")}},
		parser.Record{Line: 4, Fields: []parser.Field{txt("c"), txt("x"), txt("3")}},
		parser.Record{Line: 5, Fields: []parser.Field{txt("d"), txt("4"), txt("4")}},
	}}
	out := make(chan *Row, 10)
	obs := &recordingObserver{stopOn: 2}

	require.NoError(t, AssembleLoop(context.Background(), dec, cols, p, out, obs))
	close(out)

	assert.Equal(t, []int{1, 3}, obs.accepted)
	require.Len(t, obs.rejected, 2)
	assert.Equal(t, -1, obs.rejected[0].Column)
	assert.Equal(t, 2, obs.rejected[0].Line)
	assert.Equal(t, 4, obs.rejected[1].Line)

	var lines []int
	for r := range out {
		lines = append(lines, r.Line)
		r.Free()
	}
	assert.Equal(t, []int{1, 3}, lines)
	assert.Equal(t, 4, dec.i, "records after the stop are not read")
}

// admitN admits the first n rows.
type admitN struct {
	recordingObserver
	n int
}

func (o *admitN) Admit() bool {
	if o.n == 0 {
		return false
	}
	o.n--
	return true
}

func TestAssembleLoop_AdmitterEndsFile(t *testing.T) {
	cols := scenarioColumns(t)
	dec := &sliceDecoder{items: []any{
		parser.Record{Line: 1, Fields: []parser.Field{txt("a"), txt("1"), txt("1")}},
		parser.Record{Line: 2, Fields: []parser.Field{txt("b"), txt("x"), txt("2")}},
		parser.Record{Line: 3, Fields: []parser.Field{txt("c"), txt("3"), txt("3")}},
		parser.Record{Line: 4, Fields: []parser.Field{txt("d"), txt("4"), txt("4")}},
	}}
	out := make(chan *Row, 10)
	obs := &admitN{n: 1}

	require.NoError(t, AssembleLoop(context.Background(), dec, cols, materialize.Policy{NullFieldAs: format.Null, MissingFieldAs: format.Null}, out, obs))
	close(out)

	assert.Equal(t, []int{1}, obs.accepted)
	require.Len(t, obs.rejected, 1, "rejections do not consume admissions")
	assert.Equal(t, 3, dec.i)
	n := 0
	for r := range out {
		n++
		r.Free()
	}
	assert.Equal(t, 1, n)
}

func TestAssembleLoop_FatalEndsStream(t *testing.T) {
	cols := scenarioColumns(t)
	dec := &sliceDecoder{items: []any{
		&parser.DecodeError{Line: 7, Err: errors.New("unterminated quoted field"), Fatal: true},
		parser.Record{Line: 8, Fields: []parser.Field{txt("a"), txt("1"), txt("1")}},
	}}
	obs := &recordingObserver{}
	out := make(chan *Row, 1)
	require.NoError(t, AssembleLoop(context.Background(), dec, cols, materialize.Policy{NullFieldAs: format.Null, MissingFieldAs: format.Null}, out, obs))
	require.Len(t, obs.rejected, 1)
	assert.True(t, obs.rejected[0].Fatal)
	assert.Empty(t, obs.accepted)
}

func TestAssembleLoop_SourceErrorReturned(t *testing.T) {
	src := &parser.SourceError{Err: errors.New("reset")}
	dec := &sliceDecoder{items: []any{src}}
	err := AssembleLoop(context.Background(), dec, scenarioColumns(t), materialize.Policy{}, make(chan *Row, 1), &recordingObserver{})
	assert.ErrorIs(t, err, src)
}

/*
TestAssembleLoop_Backpressure verifies the loop blocks on a full channel and
returns on cancellation without counting the unsent row.
*/
func TestAssembleLoop_Backpressure(t *testing.T) {
	cols := scenarioColumns(t)
	var items []any
	for i := 1; i <= 5; i++ {
		items = append(items, parser.Record{Line: i, Fields: []parser.Field{txt("a"), txt("1"), txt("1")}})
	}
	dec := &sliceDecoder{items: items}
	out := make(chan *Row, 1) // nobody reads
	obs := &recordingObserver{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- AssembleLoop(ctx, dec, cols, materialize.Policy{NullFieldAs: format.Null, MissingFieldAs: format.Null}, out, obs)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("loop should be blocked on the full channel")
	default:
	}
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{1}, obs.accepted)
	assert.Equal(t, 2, dec.i, "only one record beyond channel capacity is decoded")
}
