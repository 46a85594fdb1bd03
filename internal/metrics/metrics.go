// Package metrics is a small, backend-agnostic abstraction for recording
// operational metrics of a load.
//
// The package exposes a narrow Backend interface (counters and durations)
// behind a global, pluggable backend that defaults to a no-op, so metrics are
// always safe to call even when nothing is configured. Concrete systems live
// in subpackages (prompush, datadog).
package metrics

import "time"

// Metric names shared by all backends.
const (
	FilesTotal          = "ingest_files_total"
	FileDurationSeconds = "ingest_file_duration_seconds"
	RowsTotal           = "ingest_rows_total"
	BatchesTotal        = "ingest_batches_total"
	LoadsTotal          = "ingest_loads_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
// It must be called before the load starts.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordFile counts one finished file by final state and records how long it
// took.
func RecordFile(job, state string, d time.Duration) {
	lbls := Labels{"job": job, "state": state}
	backend.IncCounter(FilesTotal, 1, lbls)
	backend.ObserveHistogram(FileDurationSeconds, d.Seconds(), lbls)
}

// RecordRows adds delta to the row counter of kind ("loaded" or "error").
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches increments the write-path batch counter.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}

// RecordLoad counts one finished load; status is "success" or "failure".
func RecordLoad(job string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	backend.IncCounter(LoadsTotal, 1, Labels{"job": job, "status": status})
}
