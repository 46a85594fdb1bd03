package main

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"ingest/internal/datasource"
	"ingest/internal/pipeline"
)

func printReports(w io.Writer, reports []pipeline.LoadReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"file", "status", "rows_loaded", "rows_error", "first_error", "first_error_line"})
	for _, r := range reports {
		status := r.State.String()
		if r.Err != nil {
			status += ": " + r.Err.Error()
		}
		firstErr, line := "", ""
		if msg, l, ok := r.FirstError(); ok {
			firstErr, line = msg, strconv.Itoa(l)
		}
		t.AppendRow(table.Row{r.Path, status, r.RowsLoaded, r.RowsError, firstErr, line})
	}
	t.Render()
}

func printFiles(w io.Writer, files []datasource.FileInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"file", "size", "last_modified"})
	for _, f := range files {
		mod := ""
		if !f.ModTime.IsZero() {
			mod = f.ModTime.UTC().Format("2006-01-02T15:04:05Z")
		}
		t.AppendRow(table.Row{f.Path, f.Size, mod})
	}
	t.Render()
}
