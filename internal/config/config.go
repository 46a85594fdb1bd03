// Package config defines the canonical, file-serializable configuration model
// for a stage load. A load file names the stage to read from, the target table
// with its column definitions, the file format and its null/missing policies,
// the copy options (on_error, force, purge, ...), the write-path backend and
// the runtime knobs for the worker pool.
//
// Load files are JSON or YAML; both decode into the same Load value. Shapes
// that vary by implementation (stage options, format options) are carried as
// an Options bag with typed getters.
//
// Example (trimmed):
//
//	{
//	  "job":   "orders",
//	  "stage": { "url": "s3://bucket/orders/" },
//	  "table": { "name": "public.orders", "columns": [ { "name": "id", "type": "string" } ] },
//	  "file_format": { "type": "csv", "options": { "skip_header": 1 }, "missing_field_as": "NULL" },
//	  "copy":    { "on_error": "continue" },
//	  "storage": { "kind": "postgres", "dsn": "postgres://..." }
//	}
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Load describes a complete stage load. It is the top-level object decoded
// from a load file.
type Load struct {
	// Job names the load for logs and metrics.
	Job string `json:"job" yaml:"job" validate:"required"`

	// Stage is where the input files live.
	Stage Stage `json:"stage" yaml:"stage"`

	// Files optionally restricts the load to these paths (relative to the stage).
	Files []string `json:"files" yaml:"files"`

	// Pattern optionally restricts the load to paths matching this regexp.
	Pattern string `json:"pattern" yaml:"pattern"`

	// MaxFiles caps the number of files considered; 0 means no cap beyond the
	// hard limit enforced by the datasource package.
	MaxFiles int `json:"max_files" yaml:"max_files" validate:"gte=0"`

	// Table is the target table definition.
	Table Table `json:"table" yaml:"table"`

	// FileFormat configures decoding and the null/missing policies.
	FileFormat FileFormat `json:"file_format" yaml:"file_format"`

	// Copy holds the ingestion-wide copy options.
	Copy CopyOptions `json:"copy" yaml:"copy"`

	// Storage selects the write path.
	Storage Storage `json:"storage" yaml:"storage"`

	// Runtime controls concurrency, batching and channel buffer sizes.
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`

	// Metrics selects an optional metrics backend.
	Metrics Metrics `json:"metrics" yaml:"metrics"`
}

// Stage identifies the storage location files are listed and read from.
type Stage struct {
	// URL selects the stage implementation by scheme: a bare path or file://,
	// s3://, gs://, azblob://, ftp://, http:// or https://.
	URL string `json:"url" yaml:"url" validate:"required"`

	// Options carries stage-specific settings (region, endpoint, credentials).
	Options Options `json:"options" yaml:"options"`
}

// Table describes the target table as the catalog would return it.
type Table struct {
	Name    string   `json:"name" yaml:"name" validate:"required"`
	Columns []Column `json:"columns" yaml:"columns" validate:"required,min=1,dive"`
}

// Column is a single column definition. Nullable defaults to true when
// omitted. Default is a literal interpreted as the column type.
type Column struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	Type     string `json:"type" yaml:"type" validate:"required"`
	Nullable *bool  `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// IsNullable reports the effective nullability of the column.
func (c Column) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

// FileFormat selects the format kind, its sub-options and the two
// ingestion-wide field policies.
type FileFormat struct {
	// Type is the format kind: csv, tsv, ndjson or avro.
	Type string `json:"type" yaml:"type" validate:"required"`

	// Options is interpreted by the format. Typical keys:
	//   field_delimiter (string), skip_header (int), null_display (string),
	//   empty_field_as ("null"|"string"), trim_space (bool),
	//   compression ("none"|"gzip"|"zstd"|"auto"), encoding (string)
	Options Options `json:"options" yaml:"options"`

	// NullFieldAs is one of NULL, FIELD_DEFAULT, TYPE_DEFAULT (ERROR is rejected).
	NullFieldAs string `json:"null_field_as" yaml:"null_field_as"`

	// MissingFieldAs is one of ERROR, NULL, FIELD_DEFAULT, TYPE_DEFAULT.
	MissingFieldAs string `json:"missing_field_as" yaml:"missing_field_as"`
}

// CopyOptions are the load-wide options of the ingestion statement.
type CopyOptions struct {
	// OnError is abort (default), continue, or abort_N.
	OnError string `json:"on_error" yaml:"on_error"`

	// ErrorLimit stops a file early once this many records were rejected
	// (continue mode only). 0 disables the limit.
	ErrorLimit int `json:"error_limit" yaml:"error_limit" validate:"gte=0"`

	// Force reprocesses files the load history has already seen.
	Force bool `json:"force" yaml:"force"`

	// Purge removes files from the stage after a successful load.
	Purge bool `json:"purge" yaml:"purge"`

	// ReturnFailedOnly limits the report to files with errors.
	ReturnFailedOnly bool `json:"return_failed_only" yaml:"return_failed_only"`

	// SizeLimit caps the rows accepted by one load across all files. Files
	// not started once it is reached are skipped. 0 disables the limit.
	SizeLimit int64 `json:"size_limit" yaml:"size_limit" validate:"gte=0"`

	// ValidationMode decodes and validates every file without writing rows
	// or touching the target database.
	ValidationMode bool `json:"validation_mode" yaml:"validation_mode"`

	// HistoryFile persists the load history between runs. Empty keeps it in
	// memory for the lifetime of the process.
	HistoryFile string `json:"history_file" yaml:"history_file"`
}

// Storage selects the sink used to persist accepted rows.
type Storage struct {
	// Kind selects the backend: postgres, mssql, mysql or sqlite.
	Kind string `json:"kind" yaml:"kind" validate:"required"`

	// DSN is the backend connection string.
	DSN string `json:"dsn" yaml:"dsn"`

	// AutoCreateTable creates the target table from the column definitions
	// when it does not exist yet.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

// RuntimeConfig controls the worker pool, batching and buffering.
type RuntimeConfig struct {
	// Concurrency is the number of files processed in parallel.
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"gte=0"`

	// ChannelBuffer is the capacity of the accepted-row channel between the
	// row assembler and the write path of each file.
	ChannelBuffer int `json:"channel_buffer" yaml:"channel_buffer" validate:"gte=0"`

	// BatchSize is the number of rows per write-path call.
	BatchSize int `json:"batch_size" yaml:"batch_size" validate:"gte=0"`

	// ErrorSample is the number of rejection messages kept per file for the
	// end-of-file log summary.
	ErrorSample int `json:"error_sample" yaml:"error_sample" validate:"gte=0"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is none (default), pushgateway or datadog.
	Backend        string   `json:"backend" yaml:"backend"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	StatsdAddr     string   `json:"statsd_addr" yaml:"statsd_addr"`
	Tags           []string `json:"tags" yaml:"tags"`
}

// ReadFile opens path and decodes it as a Load. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
func ReadFile(path string) (Load, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Load{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(bytes.NewReader(b), filepath.Ext(path))
}

// Decode decodes a Load from r. ext selects the syntax (".yaml"/".yml" for
// YAML, anything else for JSON).
func Decode(r io.Reader, ext string) (Load, error) {
	var l Load
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&l); err != nil && err != io.EOF {
			return Load{}, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&l); err != nil {
			return Load{}, fmt.Errorf("decode json config: %w", err)
		}
	}
	if l.Stage.Options == nil {
		l.Stage.Options = Options{}
	}
	if l.FileFormat.Options == nil {
		l.FileFormat.Options = Options{}
	}
	return l, nil
}

// Options is a small helper to fetch typed values from arbitrary decoded maps.
// It performs only minimal type coercion and returns the provided default
// when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64
// and YAML numbers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a missing or null "options" object to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML documents.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	var tmp map[string]any
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}
