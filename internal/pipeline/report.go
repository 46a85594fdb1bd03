package pipeline

import (
	"fmt"
	"sort"

	"ingest/internal/ledger"
)

// LoadReport is the per-file result row. FirstErrorMessage and
// FirstErrorLine are only meaningful when RowsError > 0; use FirstError.
type LoadReport struct {
	Path              string
	RowsLoaded        int64
	RowsError         int64
	FirstErrorMessage string
	FirstErrorLine    int

	State State
	// Err is a collaborator failure (open, read, write) or the cancellation
	// that stopped the file. It is never a row rejection.
	Err error
}

func newReport(path string, s ledger.Stats, st State, err error) LoadReport {
	r := LoadReport{
		Path:       path,
		RowsLoaded: s.RowsLoaded,
		RowsError:  s.RowsError,
		State:      st,
		Err:        err,
	}
	if s.HasError() {
		r.FirstErrorMessage = s.FirstErrorMessage
		r.FirstErrorLine = s.FirstErrorLine
	}
	return r
}

// FirstError returns the first rejection of the file, ok is false when no
// record was rejected.
func (r LoadReport) FirstError() (msg string, line int, ok bool) {
	if r.RowsError == 0 {
		return "", 0, false
	}
	return r.FirstErrorMessage, r.FirstErrorLine, true
}

// Failed reports whether the file had rejections or did not complete.
func (r LoadReport) Failed() bool {
	return r.RowsError > 0 || r.State != Succeeded
}

// AbortError is returned by Run when the ABORT policy ended the load. The
// reports are still returned alongside it.
type AbortError struct {
	File    string
	Line    int
	Message string
}

func (e *AbortError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load aborted: file %s line %d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("load aborted: file %s: %s", e.File, e.Message)
}

// SortReports orders reports by path.
func SortReports(rs []LoadReport) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Path < rs[j].Path })
}

// FailedOnly keeps the reports of files that had rejections or did not
// complete.
func FailedOnly(rs []LoadReport) []LoadReport {
	out := rs[:0:0]
	for _, r := range rs {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}
