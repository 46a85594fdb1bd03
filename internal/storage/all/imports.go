// Package all links every storage backend. Importing it registers the
// factories and DDL bootstrappers for postgres, mssql (also "sqlserver"),
// mysql and sqlite.
package all

import (
	_ "ingest/internal/storage/mssql"
	_ "ingest/internal/storage/mysql"
	_ "ingest/internal/storage/postgres"
	_ "ingest/internal/storage/sqlite"
)
