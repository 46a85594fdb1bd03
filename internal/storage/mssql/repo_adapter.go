package mssql

import (
	"context"

	"ingest/internal/schema"
	"ingest/internal/storage"
	msddl "ingest/internal/storage/mssql/ddl"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	factory := func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	}
	bootstrap := func(ctx context.Context, repo storage.Repository, table string, cols []schema.ColumnSpec) error {
		return msddl.EnsureTable(ctx, repo, table, cols)
	}
	for _, kind := range []string{"mssql", "sqlserver"} {
		storage.Register(kind, factory)
		storage.RegisterDDL(kind, bootstrap)
	}
}
