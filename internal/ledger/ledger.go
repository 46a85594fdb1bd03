// Package ledger keeps the per-file load statistics and decides, after every
// rejected record, whether the file keeps going.
//
// A Ledger is owned by exactly one file task and is not safe for concurrent
// use; the pipeline never shares one across goroutines.
package ledger

import (
	"ingest/internal/format"
	"ingest/internal/transformer"
)

// Decision is the ledger's verdict after the latest outcome.
type Decision int

const (
	// Continue keeps reading the file.
	Continue Decision = iota
	// StopLimit ends the file early because the error limit was reached. The
	// file still counts as succeeded with the counts accumulated so far.
	StopLimit
	// Abort ends the file and the whole load.
	Abort
)

func (d Decision) String() string {
	switch d {
	case StopLimit:
		return "stop_limit"
	case Abort:
		return "abort"
	default:
		return "continue"
	}
}

// Stats is the accumulator finalized into a load report row.
// FirstErrorMessage and FirstErrorLine are meaningful only when RowsError > 0.
type Stats struct {
	RowsLoaded        int64
	RowsError         int64
	FirstErrorMessage string
	FirstErrorLine    int
}

// HasError reports whether at least one record was rejected.
func (s Stats) HasError() bool { return s.RowsError > 0 }

// Ledger accumulates Stats for one file.
type Ledger struct {
	policy   format.LoadPolicy
	stats    Stats
	decision Decision

	sampleCap int
	sample    []string
}

// New returns a ledger for one file. sample bounds how many rejection
// messages are retained for the end-of-file summary (0 keeps none).
func New(policy format.LoadPolicy, sample int) *Ledger {
	if sample < 0 {
		sample = 0
	}
	return &Ledger{policy: policy, sampleCap: sample}
}

var _ transformer.Observer = (*Ledger)(nil)

// Accepted counts a row handed to the write path.
func (l *Ledger) Accepted(int) { l.stats.RowsLoaded++ }

// Rejected counts r, records it as the first error when none is set and
// returns false once the file must stop.
func (l *Ledger) Rejected(r transformer.Rejection) bool {
	l.stats.RowsError++
	if l.stats.RowsError == 1 {
		l.stats.FirstErrorMessage = r.Message
		l.stats.FirstErrorLine = r.Line
	}
	if len(l.sample) < l.sampleCap {
		l.sample = append(l.sample, r.Message)
	}

	switch {
	case l.policy.OnError == format.Abort:
		l.decision = Abort
	case l.policy.ErrorLimit > 0 && l.stats.RowsError >= int64(l.policy.ErrorLimit):
		l.decision = StopLimit
	}
	return l.decision == Continue
}

// Decision returns the latest verdict. It never goes back to Continue.
func (l *Ledger) Decision() Decision { return l.decision }

// Stats returns a snapshot of the counters.
func (l *Ledger) Stats() Stats { return l.stats }

// Sample returns up to the configured number of rejection messages, in input
// order.
func (l *Ledger) Sample() []string { return l.sample }
