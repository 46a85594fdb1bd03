// Package config provides configuration models and helpers for stage loads.
//
// This file adds a lightweight linter/validator for Load values. It performs
// static checks over a decoded Load and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests. Policy values
// (null_field_as, missing_field_as, on_error) are resolved and rejected by
// package format; this linter only checks shape.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// MaxFilesLimit is the hard cap on files considered by a single load.
const MaxFilesLimit = 2000

// Issue describes a single validation/lint finding for a Load.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "table.columns[1].name"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateLoad performs static validation / linting of a Load.
//
// It does not mutate the load. Struct tags are checked first, then the
// per-section rules. Callers may decide whether to treat warnings as fatal.
//
// Example:
//
//	l, err := config.ReadFile("load.yaml")
//	if err != nil { ... }
//	for _, iss := range config.ValidateLoad(l) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidateLoad(l Load) []Issue {
	var issues []Issue
	issues = append(issues, structIssues(l)...)
	issues = append(issues, validateSelection(l)...)
	issues = append(issues, validateTable(l.Table)...)
	issues = append(issues, validateFileFormat(l.FileFormat)...)
	issues = append(issues, validateCopy(l.Copy)...)
	issues = append(issues, validateStorage(l.Storage)...)
	issues = append(issues, validateRuntime(l.Runtime)...)
	issues = append(issues, validateMetrics(l.Metrics)...)
	return dedupe(issues)
}

// structIssues converts validator tag failures into Issues keyed by the
// JSON field path.
func structIssues(l Load) []Issue {
	err := validate.Struct(l)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
	}
	out := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, Issue{
			Severity: SeverityError,
			Path:     jsonPath(fe.Namespace()),
			Message:  fmt.Sprintf("failed %q constraint", fe.Tag()),
		})
	}
	return out
}

// jsonPath maps a validator namespace ("Load.Table.Columns[0].Name") to the
// config file path ("table.columns[0].name").
func jsonPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 && parts[0] == "Load" {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '[' {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validateSelection(l Load) []Issue {
	var issues []Issue
	if strings.TrimSpace(l.Stage.URL) == "" {
		// reported by struct validation
		return issues
	}
	if l.Pattern != "" {
		if _, err := regexp.Compile(l.Pattern); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "pattern",
				Message:  fmt.Sprintf("invalid regexp: %v", err),
			})
		}
	}
	if l.MaxFiles > MaxFilesLimit {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "max_files",
			Message:  fmt.Sprintf("max_files=%d exceeds the limit; %d will be used", l.MaxFiles, MaxFilesLimit),
		})
	}
	if len(l.Files) > 0 && l.Pattern != "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "pattern",
			Message:  "both files and pattern set; pattern is applied to the explicit list",
		})
	}
	return issues
}

func validateTable(t Table) []Issue {
	var issues []Issue
	seen := map[string]int{}
	for i, c := range t.Columns {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			continue
		}
		if j, dup := seen[key]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("table.columns[%d].name", i),
				Message:  fmt.Sprintf("duplicate column %q (first declared at index %d)", c.Name, j),
			})
			continue
		}
		seen[key] = i
	}
	return issues
}

func validateFileFormat(f FileFormat) []Issue {
	var issues []Issue
	known := map[string]struct{}{"csv": {}, "tsv": {}, "ndjson": {}, "json": {}, "avro": {}}
	if k := strings.ToLower(strings.TrimSpace(f.Type)); k != "" {
		if _, ok := known[k]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "file_format.type",
				Message:  fmt.Sprintf("unsupported format %q", f.Type),
			})
		}
	}
	if n := f.Options.Int("skip_header", 0); n < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "file_format.options.skip_header",
			Message:  "skip_header must be >= 0",
		})
	}
	if d := f.Options.String("field_delimiter", ""); len([]rune(d)) > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "file_format.options.field_delimiter",
			Message:  "field_delimiter must be a single character",
		})
	}
	if strings.EqualFold(strings.TrimSpace(f.NullFieldAs), "ERROR") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "file_format.null_field_as",
			Message:  "null_field_as=ERROR is not supported",
		})
	}
	return issues
}

func validateCopy(c CopyOptions) []Issue {
	var issues []Issue
	mode := strings.ToLower(strings.TrimSpace(c.OnError))
	if (mode == "" || mode == "abort") && c.ErrorLimit > 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "copy.error_limit",
			Message:  "error_limit requires on_error=continue",
		})
	}
	if c.Purge && c.ReturnFailedOnly {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "copy.purge",
			Message:  "purged files will not appear in the report when return_failed_only is set",
		})
	}
	if c.ValidationMode && c.Purge {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "copy.purge",
			Message:  "purge is ignored in validation mode",
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	kind := strings.TrimSpace(s.Kind)
	if kind == "" {
		return issues
	}
	known := map[string]struct{}{
		"postgres":  {},
		"mssql":     {},
		"sqlserver": {},
		"mysql":     {},
		"sqlite":    {},
	}
	if _, ok := known[kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching implementation exists", kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.BatchSize > 0 && r.ChannelBuffer > 0 && r.ChannelBuffer < r.BatchSize/100 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer is very small relative to batch_size; the write path may starve",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires pushgateway_url",
			})
		}
	case "datadog":
		if m.StatsdAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.statsd_addr",
				Message:  "statsd_addr empty; the client default address will be used",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}
	return issues
}

func dedupe(in []Issue) []Issue {
	seen := make(map[Issue]struct{}, len(in))
	out := in[:0]
	for _, iss := range in {
		if _, ok := seen[iss]; ok {
			continue
		}
		seen[iss] = struct{}{}
		out = append(out, iss)
	}
	return out
}
