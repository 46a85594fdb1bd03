package storage

import (
	"context"

	"ingest/internal/metrics"
	"ingest/internal/transformer"
)

// RepoWriter streams one file's rows into a Repository in batches.
type RepoWriter struct {
	Repo      Repository
	Columns   []string
	BatchSize int
	// Job labels the batch counter.
	Job string
}

// WriteFile drains rows into the repository until the channel closes, ctx is
// canceled or a batch fails.
func (w *RepoWriter) WriteFile(ctx context.Context, path string, rows <-chan *transformer.Row) (int64, error) {
	return LoadBatches(ctx, path, w.Columns, rows, w.BatchSize, w.copyFrom)
}

func (w *RepoWriter) copyFrom(ctx context.Context, cols []string, batch [][]any) (int64, error) {
	n, err := w.Repo.CopyFrom(ctx, cols, batch)
	if err == nil {
		metrics.RecordBatches(w.Job, 1)
	}
	return n, err
}

// Discard consumes and frees rows without persisting them. It backs dry runs.
type Discard struct{}

// WriteFile counts and frees every row.
func (Discard) WriteFile(ctx context.Context, _ string, rows <-chan *transformer.Row) (int64, error) {
	var n int64
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case r, ok := <-rows:
			if !ok {
				return n, nil
			}
			r.Free()
			n++
		}
	}
}
