// Package format resolves the file-format section of a load into the
// immutable FileFormatOptions and LoadPolicy used by every file of the load.
//
// Resolution happens once, before any file is listed or read. Invalid
// combinations (an unknown format kind, null_field_as=ERROR, a bad
// delimiter, an unknown on_error mode) fail here and never reach row
// processing.
package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"ingest/internal/config"
)

// ErrNullFieldAsError is returned by Resolve when null_field_as=ERROR. An
// error-on-null outcome cannot be resolved per row for a streaming format.
var ErrNullFieldAsError = errors.New("null_field_as=ERROR is not supported")

// Kind is the closed set of supported format kinds. Each kind has exactly one
// decoder implementation, selected once per load.
type Kind int

const (
	CSV Kind = iota + 1
	TSV
	NDJSON
	Avro
)

func (k Kind) String() string {
	switch k {
	case CSV:
		return "csv"
	case TSV:
		return "tsv"
	case NDJSON:
		return "ndjson"
	case Avro:
		return "avro"
	}
	return "unknown"
}

// ParseKind parses a format type name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "tsv", "tabseparated":
		return TSV, nil
	case "ndjson", "json", "jsonl":
		return NDJSON, nil
	case "avro":
		return Avro, nil
	}
	return 0, fmt.Errorf("unsupported file format type %q", s)
}

// FieldPolicy is how a null or missing field is materialized.
type FieldPolicy int

const (
	Error FieldPolicy = iota + 1
	Null
	FieldDefault
	TypeDefault
)

func (p FieldPolicy) String() string {
	switch p {
	case Error:
		return "ERROR"
	case Null:
		return "NULL"
	case FieldDefault:
		return "FIELD_DEFAULT"
	case TypeDefault:
		return "TYPE_DEFAULT"
	}
	return "UNKNOWN"
}

// ParseFieldPolicy parses ERROR, NULL, FIELD_DEFAULT or TYPE_DEFAULT
// case-insensitively. def is returned for an empty string.
func ParseFieldPolicy(s string, def FieldPolicy) (FieldPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "ERROR":
		return Error, nil
	case "NULL":
		return Null, nil
	case "FIELD_DEFAULT":
		return FieldDefault, nil
	case "TYPE_DEFAULT":
		return TypeDefault, nil
	}
	return 0, fmt.Errorf("unknown field policy %q", s)
}

// Compression of the input bytes.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	// CompressionAuto detects gzip or zstd by file suffix or magic bytes.
	CompressionAuto
)

func parseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CompressionAuto, nil
	case "none":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("unsupported compression %q", s)
}

// FileFormatOptions is resolved once per load and shared read-only by all
// file tasks.
type FileFormatOptions struct {
	Kind Kind

	// Delimited-text options.
	Delimiter        rune
	Quote            rune // 0 disables quoting (TSV)
	SkipHeader       int
	NullDisplay      string
	EmptyFieldAsNull bool
	TrimSpace        bool

	// Framing.
	Compression Compression
	// Encoding decodes input bytes to UTF-8. nil means the input is UTF-8.
	Encoding     encoding.Encoding
	EncodingName string

	NullFieldAs    FieldPolicy
	MissingFieldAs FieldPolicy
}

// Resolve validates f and builds the FileFormatOptions for a load.
func Resolve(f config.FileFormat) (FileFormatOptions, error) {
	kind, err := ParseKind(f.Type)
	if err != nil {
		return FileFormatOptions{}, err
	}
	nullAs, err := ParseFieldPolicy(f.NullFieldAs, Null)
	if err != nil {
		return FileFormatOptions{}, fmt.Errorf("null_field_as: %w", err)
	}
	if nullAs == Error {
		return FileFormatOptions{}, ErrNullFieldAsError
	}
	missingAs, err := ParseFieldPolicy(f.MissingFieldAs, Error)
	if err != nil {
		return FileFormatOptions{}, fmt.Errorf("missing_field_as: %w", err)
	}

	o := f.Options
	if o == nil {
		o = config.Options{}
	}
	out := FileFormatOptions{
		Kind:           kind,
		SkipHeader:     o.Int("skip_header", 0),
		TrimSpace:      o.Bool("trim_space", false),
		NullFieldAs:    nullAs,
		MissingFieldAs: missingAs,
	}
	if out.SkipHeader < 0 {
		return FileFormatOptions{}, fmt.Errorf("skip_header must be >= 0, got %d", out.SkipHeader)
	}

	switch kind {
	case CSV:
		out.Delimiter = ','
		out.Quote = '"'
		out.NullDisplay = `\N`
	case TSV:
		out.Delimiter = '\t'
		out.NullDisplay = `\N`
	}
	if kind == CSV || kind == TSV {
		if d := o.String("field_delimiter", ""); d != "" {
			r, err := parseDelimiter(d)
			if err != nil {
				return FileFormatOptions{}, err
			}
			out.Delimiter = r
		}
		if q, ok := o["quote"]; ok && kind == CSV {
			s, isStr := q.(string)
			if !isStr {
				return FileFormatOptions{}, fmt.Errorf("quote must be a string, got %T", q)
			}
			switch len([]rune(s)) {
			case 0:
				out.Quote = 0
			case 1:
				out.Quote = []rune(s)[0]
			default:
				return FileFormatOptions{}, fmt.Errorf("quote must be a single character, got %q", s)
			}
		}
		if out.Quote != 0 && out.Quote == out.Delimiter {
			return FileFormatOptions{}, errors.New("quote and field_delimiter must differ")
		}
		out.NullDisplay = o.String("null_display", out.NullDisplay)
		switch strings.ToLower(o.String("empty_field_as", "string")) {
		case "string":
		case "null":
			out.EmptyFieldAsNull = true
		default:
			return FileFormatOptions{}, fmt.Errorf("empty_field_as must be null or string, got %q", o.String("empty_field_as", ""))
		}
	}

	comp, err := parseCompression(o.String("compression", ""))
	if err != nil {
		return FileFormatOptions{}, err
	}
	out.Compression = comp

	name := o.String("encoding", "utf-8")
	enc, err := LookupEncoding(name)
	if err != nil {
		return FileFormatOptions{}, err
	}
	out.Encoding = enc
	out.EncodingName = strings.ToLower(name)
	if kind == Avro && enc != nil {
		return FileFormatOptions{}, errors.New("encoding does not apply to avro")
	}
	return out, nil
}

// parseDelimiter accepts a single character or a common escape (\t, \x1f).
func parseDelimiter(d string) (rune, error) {
	if strings.HasPrefix(d, `\`) && len(d) > 1 {
		s, err := strconv.Unquote(`"` + d + `"`)
		if err != nil {
			return 0, fmt.Errorf("invalid field_delimiter %q: %w", d, err)
		}
		d = s
	}
	rs := []rune(d)
	if len(rs) != 1 {
		return 0, fmt.Errorf("field_delimiter must be a single character, got %q", d)
	}
	switch rs[0] {
	case '\n', '\r', '"':
		return 0, fmt.Errorf("field_delimiter %q is not allowed", d)
	}
	return rs[0], nil
}

// LookupEncoding maps a character-set name to an x/text encoding. UTF-8 maps
// to nil (no transcoding).
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1250", "cp1250":
		return charmap.Windows1250, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}
