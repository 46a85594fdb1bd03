package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"ingest/internal/transformer"
)

// CopyFn is a backend's bulk insert. It must cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains pooled rows from in, groups them into batches of
// batchSize and calls copyFn per batch. Rows are returned to the pool after
// their batch is flushed. It returns the total reported by copyFn and the
// first error.
//
// On cancellation or a copy error it returns without draining in; the
// producer owns the rows still in the channel. Rows already taken into the
// pending batch are freed here.
func LoadBatches(
	ctx context.Context,
	label string,
	columns []string,
	in <-chan *transformer.Row,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total     int64
		batches   int64
		batchRows = make([]*transformer.Row, 0, batchSize)
		slab      = make([][]any, 0, batchSize)
		start     = time.Now()
		lastTS    = start
		lastTotal int64
	)

	release := func() {
		for _, r := range batchRows {
			r.Free()
		}
		batchRows = batchRows[:0]
	}

	flush := func() error {
		if len(batchRows) == 0 {
			return nil
		}
		slab = slab[:0]
		for _, r := range batchRows {
			slab = append(slab, r.V)
		}
		n, err := copyFn(ctx, columns, slab)
		total += n
		release()
		if err != nil {
			log.Printf("loader: file=%s copy failed after=%d total=%d err=%v", label, n, total, err)
			return err
		}

		batches++
		now := time.Now()
		since := now.Sub(lastTS)
		rps := float64(0)
		if since > 0 {
			rps = float64(total-lastTotal) / since.Seconds()
		}
		log.Printf("loader: file=%s batch=%d rps=%.0f inserted=%d total_inserted=%d elapsed=%s",
			label, batches, rps, n, total, now.Sub(start).Truncate(time.Millisecond))
		lastTS, lastTotal = now, total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			release()
			return total, ctx.Err()

		case r, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batchRows = append(batchRows, r)
			if len(batchRows) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
