package storage

import (
	"context"
	"fmt"
	"sync"

	"ingest/internal/schema"
)

// DDLBootstrapper creates table from cols through repo when it does not
// exist yet. Backends register one per storage kind at init time.
type DDLBootstrapper func(ctx context.Context, repo Repository, table string, cols []schema.ColumnSpec) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the bootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable runs the bootstrapper registered for kind.
func EnsureTable(ctx context.Context, kind string, repo Repository, table string, cols []schema.ColumnSpec) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	return fn(ctx, repo, table, cols)
}
