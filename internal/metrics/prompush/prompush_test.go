package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	require.NotNil(t, m.GetCounter())
	return m.GetCounter().GetValue()
}

// readSummaryCount reads the sample count and sum of one summary series.
func readSummaryCount(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	require.True(t, ok)
	require.NoError(t, metric.Write(m))
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	_, err := NewBackend("orders", "")
	assert.Error(t, err)

	b, err := NewBackend("", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "ingest", b.jobName)

	b, err = NewBackend("orders", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "orders", b.jobName)
}

/*
TestIncCounter checks that every shared metric name reaches its collector and
unknown names are ignored.
*/
func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("orders", "http://example.com")
	require.NoError(t, err)

	b.IncCounter(metrics.FilesTotal, 2, metrics.Labels{"job": "orders", "state": "succeeded"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"kind": "loaded"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	b.IncCounter(metrics.BatchesTotal, 0.5, nil)
	b.IncCounter(metrics.LoadsTotal, 1, metrics.Labels{"status": "failure"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	assert.Equal(t, 2.0, readCounterValue(t, b.files.WithLabelValues("succeeded")))
	assert.Equal(t, 5.0, readCounterValue(t, b.rows.WithLabelValues("loaded")))
	assert.Equal(t, 1.5, readCounterValue(t, b.batches))
	assert.Equal(t, 1.0, readCounterValue(t, b.loads.WithLabelValues("failure")))
	assert.Equal(t, 0.0, readCounterValue(t, b.rows.WithLabelValues("error")))
}

func TestNilCollectors(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	assert.NotPanics(t, func() {
		b.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"state": "aborted"})
		b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "loaded"})
		b.IncCounter(metrics.BatchesTotal, 1, nil)
		b.ObserveHistogram(metrics.FileDurationSeconds, 1, nil)
	})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("orders", "http://example.com")
	require.NoError(t, err)

	b.ObserveHistogram(metrics.FileDurationSeconds, 1.5, metrics.Labels{"state": "succeeded"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"state": "succeeded"})

	n, sum := readSummaryCount(t, b.fileDuration, "succeeded")
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, 1.5, sum)
}

/*
TestFlush pushes to a fake Pushgateway and checks that the job and grouping
labels end up in the request path.
*/
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushed, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{r.Method, r.URL.Path, len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("orders", server.URL)
	require.NoError(t, err)
	b.WithGrouping("load_id", "abc")
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "loaded"})

	require.NoError(t, b.Flush())

	got := <-reqCh
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/metrics/job/orders/load_id/abc", got.path)
	assert.Positive(t, got.bodyLen)
}
