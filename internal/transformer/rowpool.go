// Package transformer assembles decoded records into typed rows. This file
// defines the pooled Row type used between the row assembler and the write
// path to reduce heap churn and GC pressure.
package transformer

import "sync"

// Row is a pooled container holding a positional row for the write path.
//
// Contract:
//   - The assembler writes into r.V[0:colCount] (no re-slice growth).
//   - After the row has been persisted (or dropped), the write path **must**
//     call r.Free() to return it to the pool.
//   - Do not retain references to r or r.V beyond the owning stage.
//
// V is []any so it can feed pgx CopyFromRows and database/sql directly.
type Row struct {
	Line int
	V    []any
}

var rowPool sync.Pool

// GetRow returns a pooled Row with capacity for colCount fields and length set
// to colCount. All elements are zeroed.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool. The caller must not use r after Free().
func (r *Row) Free() {
	rowPool.Put(r)
}
