package pipeline

import (
	"sync/atomic"

	"ingest/internal/ledger"
)

// rowQuota is the load-wide cap on accepted rows shared by all file tasks.
// A nil quota admits everything.
type rowQuota struct {
	limit int64
	used  atomic.Int64
}

func newRowQuota(limit int64) *rowQuota {
	if limit <= 0 {
		return nil
	}
	return &rowQuota{limit: limit}
}

// take reserves one row. It fails once limit rows were reserved.
func (q *rowQuota) take() bool {
	if q == nil {
		return true
	}
	for {
		n := q.used.Load()
		if n >= q.limit {
			return false
		}
		if q.used.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (q *rowQuota) exhausted() bool {
	return q != nil && q.used.Load() >= q.limit
}

// quotaLedger admits rows against the shared quota and records everything
// else in the file's ledger.
type quotaLedger struct {
	*ledger.Ledger
	q *rowQuota
}

func (l quotaLedger) Admit() bool { return l.q.take() }
