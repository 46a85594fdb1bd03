package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/metrics"
	"ingest/internal/transformer"
)

func feed(n int) chan *transformer.Row {
	in := make(chan *transformer.Row, n)
	for i := 0; i < n; i++ {
		r := transformer.GetRow(2)
		r.V[0], r.V[1] = int64(i), "x"
		r.Line = i + 1
		in <- r
	}
	close(in)
	return in
}

/*
TestLoadBatches_Basic verifies rows are grouped into batches and the total
equals the sum of copyFn returns.
*/
func TestLoadBatches_Basic(t *testing.T) {
	var calls int32
	var sizes []int
	copyFn := func(_ context.Context, cols []string, rows [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		sizes = append(sizes, len(rows))
		assert.Equal(t, []string{"c1", "c2"}, cols)
		return int64(len(rows)), nil
	}
	total, err := LoadBatches(context.Background(), "f.csv", []string{"c1", "c2"}, feed(7), 3, copyFn)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestLoadBatches_ErrorStops(t *testing.T) {
	want := errors.New("copy failed")
	batches := 0
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		batches++
		if batches == 2 {
			return 0, want
		}
		return int64(len(rows)), nil
	}
	total, err := LoadBatches(context.Background(), "f.csv", []string{"c"}, feed(5), 2, copyFn)
	assert.ErrorIs(t, err, want)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, 2, batches)
}

func TestLoadBatches_InvalidArgs(t *testing.T) {
	_, err := LoadBatches(context.Background(), "f", nil, feed(0), 0, func(context.Context, []string, [][]any) (int64, error) { return 0, nil })
	assert.Error(t, err)
	_, err = LoadBatches(context.Background(), "f", nil, feed(0), 1, nil)
	assert.Error(t, err)
}

func TestLoadBatches_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan *transformer.Row)
	done := make(chan error, 1)
	go func() {
		_, err := LoadBatches(ctx, "f", []string{"c"}, in, 10, func(context.Context, []string, [][]any) (int64, error) { return 0, nil })
		done <- err
	}()
	in <- transformer.GetRow(1)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadBatches did not return after cancel")
	}
}

type batchCounter struct{ batches float64 }

func (b *batchCounter) IncCounter(name string, delta float64, lbls metrics.Labels) {
	if name == metrics.BatchesTotal && lbls["job"] == "orders" {
		b.batches += delta
	}
}
func (*batchCounter) ObserveHistogram(string, float64, metrics.Labels) {}
func (*batchCounter) Flush() error                                     { return nil }

func TestRepoWriter_And_Discard(t *testing.T) {
	counter := &batchCounter{}
	metrics.SetBackend(counter)
	t.Cleanup(func() { metrics.SetBackend(&batchCounter{}) })

	repo := &fakeRepo{}
	w := &RepoWriter{Repo: repo, Columns: []string{"a", "b"}, BatchSize: 4, Job: "orders"}
	n, err := w.WriteFile(context.Background(), "f.csv", feed(6))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	require.Len(t, repo.rows, 6)
	assert.Equal(t, []any{int64(5), "x"}, repo.rows[5])
	assert.Equal(t, float64(2), counter.batches)

	n, err = Discard{}.WriteFile(context.Background(), "f.csv", feed(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
