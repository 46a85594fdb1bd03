// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. Collectors live in a private registry that is pushed to
// the gateway on Flush; the load's job name is the Pushgateway "job" group.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"ingest/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string
	grouping   map[string]string
	reg        *prometheus.Registry

	files        *prometheus.CounterVec // ingest_files_total{state}
	fileDuration *prometheus.SummaryVec // ingest_file_duration_seconds{state}
	rows         *prometheus.CounterVec // ingest_rows_total{kind}
	batches      prometheus.Counter     // ingest_batches_total
	loads        *prometheus.CounterVec // ingest_loads_total{status}
}

// NewBackend constructs a Prometheus Pushgateway backend. An empty jobName
// defaults to "ingest".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "ingest"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		grouping:   map[string]string{},
		reg:        prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FilesTotal,
			Help: "Files processed, partitioned by final state.",
		}, []string{"state"}),
		fileDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.FileDurationSeconds,
			Help:       "Per-file processing time in seconds, partitioned by final state.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"state"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows loaded or rejected.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Write-path batches flushed.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.LoadsTotal,
			Help: "Loads finished, partitioned by status.",
		}, []string{"status"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"files":         b.files,
		"file duration": b.fileDuration,
		"rows":          b.rows,
		"batches":       b.batches,
		"loads":         b.loads,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

// WithGrouping adds a Pushgateway grouping label (e.g. load_id).
func (b *Backend) WithGrouping(name, value string) *Backend {
	b.grouping[name] = value
	return b
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.FilesTotal:
		if b.files != nil {
			b.files.WithLabelValues(labels["state"]).Add(delta)
		}
	case metrics.RowsTotal:
		if b.rows != nil {
			b.rows.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.BatchesTotal:
		if b.batches != nil {
			b.batches.Add(delta)
		}
	case metrics.LoadsTotal:
		if b.loads != nil {
			b.loads.WithLabelValues(labels["status"]).Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.FileDurationSeconds || b.fileDuration == nil {
		return
	}
	b.fileDuration.WithLabelValues(labels["state"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	p := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg)
	for k, v := range b.grouping {
		p = p.Grouping(k, v)
	}
	return p.Push()
}
