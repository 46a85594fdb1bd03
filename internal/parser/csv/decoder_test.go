package csv

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/config"
	"ingest/internal/format"
	"ingest/internal/parser"
)

// decoded is a flattened, comparable view of one Next() result.
type decoded struct {
	line   int
	states []parser.State
	values []string
	err    string
	fatal  bool
}

func mustOpts(t *testing.T, typ string, o config.Options) format.FileFormatOptions {
	t.Helper()
	opts, err := format.Resolve(config.FileFormat{Type: typ, Options: o})
	require.NoError(t, err)
	return opts
}

/*
drain reads every result of a decoder over input, copying field bytes since
records are only valid until the next call.
*/
func drain(t *testing.T, input string, ncol int, opts format.FileFormatOptions) []decoded {
	t.Helper()
	d := NewDecoder(strings.NewReader(input), ncol, opts)
	var out []decoded
	for i := 0; i < 1000; i++ {
		rec, err := d.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			var de *parser.DecodeError
			require.True(t, errors.As(err, &de), "unexpected error type %T", err)
			out = append(out, decoded{line: de.Line, err: de.Err.Error(), fatal: de.Fatal})
			continue
		}
		dd := decoded{line: rec.Line}
		for _, f := range rec.Fields {
			dd.states = append(dd.states, f.State)
			dd.values = append(dd.values, string(f.Value))
		}
		out = append(out, dd)
	}
	t.Fatal("decoder did not terminate")
	return nil
}

const (
	P = parser.Present
	N = parser.PresentNull
	A = parser.Absent
)

/*
Test_Decoder_FieldStates covers the tri-state mapping: quoted empties stay
Present(""), the null marker becomes PresentNull, and missing trailing fields
are Absent.
*/
func Test_Decoder_FieldStates(t *testing.T) {
	in := "1,\"\",\\N\n2,,x\n3\n"
	got := drain(t, in, 3, mustOpts(t, "csv", nil))
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].line)
	assert.Equal(t, []parser.State{P, P, N}, got[0].states)
	assert.Equal(t, []string{"1", "", ""}, got[0].values)

	assert.Equal(t, []parser.State{P, P, P}, got[1].states)
	assert.Equal(t, []string{"2", "", "x"}, got[1].values)

	assert.Equal(t, 3, got[2].line)
	assert.Equal(t, []parser.State{P, A, A}, got[2].states)
}

func Test_Decoder_EmptyFieldAsNull(t *testing.T) {
	in := "a,,\"\"\n"
	got := drain(t, in, 3, mustOpts(t, "csv", config.Options{"empty_field_as": "null"}))
	require.Len(t, got, 1)
	assert.Equal(t, []parser.State{P, N, P}, got[0].states)
}

/*
Test_Decoder_QuotingAndLines verifies RFC-4180 quoting: embedded delimiters,
doubled quotes and newlines inside quoted fields. Line numbers are the
physical line a record starts on, counting the skipped header and blank
lines.
*/
func Test_Decoder_QuotingAndLines(t *testing.T) {
	in := "id,name\r\n" +
		"1,\"a,b\"\r\n" +
		"\r\n" +
		"2,\"say \"\"hi\"\"\"\r\n" +
		"3,\"multi\nline\"\n" +
		"4,last"
	got := drain(t, in, 2, mustOpts(t, "csv", config.Options{"skip_header": 1}))
	require.Len(t, got, 4)
	assert.Equal(t, 2, got[0].line)
	assert.Equal(t, []string{"1", "a,b"}, got[0].values)
	assert.Equal(t, 4, got[1].line)
	assert.Equal(t, []string{"2", `say "hi"`}, got[1].values)
	assert.Equal(t, 5, got[2].line)
	assert.Equal(t, []string{"3", "multi\nline"}, got[2].values)
	assert.Equal(t, 7, got[3].line)
	assert.Equal(t, []string{"4", "last"}, got[3].values)
}

/*
Test_Decoder_RecordLevelErrors verifies that too many fields and garbage after
a closing quote reject only the affected record.
*/
func Test_Decoder_RecordLevelErrors(t *testing.T) {
	in := "1,2,3\n\"a\"x,b\n4,5\n"
	got := drain(t, in, 2, mustOpts(t, "csv", nil))
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].line)
	assert.Contains(t, got[0].err, "field count mismatch")
	assert.False(t, got[0].fatal)

	assert.Equal(t, 2, got[1].line)
	assert.Contains(t, got[1].err, "after closing quote")
	assert.False(t, got[1].fatal)

	assert.Equal(t, 3, got[2].line)
	assert.Equal(t, []string{"4", "5"}, got[2].values)
}

/*
Test_Decoder_UnterminatedQuoteIsFatal verifies the stream-level error ends
the sequence and is attributed to the line where the broken record begins.
*/
func Test_Decoder_UnterminatedQuoteIsFatal(t *testing.T) {
	in := "1,ok\n2,\"never closed\n3,x\n"
	got := drain(t, in, 2, mustOpts(t, "csv", nil))
	require.Len(t, got, 2)
	assert.Equal(t, []string{"1", "ok"}, got[0].values)
	assert.Equal(t, 2, got[1].line)
	assert.True(t, got[1].fatal)
	assert.Contains(t, got[1].err, "unterminated")
}

func Test_Decoder_TSV(t *testing.T) {
	in := "a\t\\N\tx\\ty\n\"q\"\t\t\\\\\n"
	got := drain(t, in, 3, mustOpts(t, "tsv", nil))
	require.Len(t, got, 2)
	assert.Equal(t, []parser.State{P, N, P}, got[0].states)
	assert.Equal(t, []string{"a", "", "x\ty"}, got[0].values)
	// TSV has no quoting: quotes are literal.
	assert.Equal(t, []string{`"q"`, "", `\`}, got[1].values)
}

func Test_Decoder_TrimAndCustomDelimiter(t *testing.T) {
	in := " a | NULL | c \n"
	got := drain(t, in, 3, mustOpts(t, "csv", config.Options{
		"field_delimiter": "|",
		"trim_space":      true,
		"null_display":    "NULL",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, []parser.State{P, N, P}, got[0].states)
	assert.Equal(t, []string{"a", "", "c"}, got[0].values)
}

func Test_Decoder_EmptyAndHeaderOnly(t *testing.T) {
	assert.Empty(t, drain(t, "", 2, mustOpts(t, "csv", nil)))
	assert.Empty(t, drain(t, "a,b\n", 2, mustOpts(t, "csv", config.Options{"skip_header": 1})))
}

func Test_Decoder_InvalidUTF8IsRecordError(t *testing.T) {
	in := "a\xffb,1\n\"q\xfe\nr\",2\nok,3\n"
	got := drain(t, in, 2, mustOpts(t, "csv", nil))
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].line)
	assert.Contains(t, got[0].err, "invalid utf-8")
	assert.False(t, got[0].fatal)

	assert.Equal(t, 2, got[1].line)
	assert.Contains(t, got[1].err, "invalid utf-8")

	assert.Equal(t, 4, got[2].line)
	assert.Equal(t, []string{"ok", "3"}, got[2].values)
}
