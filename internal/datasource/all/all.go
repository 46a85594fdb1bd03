// Package all links every stage backend.
package all

import (
	_ "ingest/internal/datasource/azblob"
	_ "ingest/internal/datasource/file"
	_ "ingest/internal/datasource/ftp"
	_ "ingest/internal/datasource/gcs"
	_ "ingest/internal/datasource/httpds"
	_ "ingest/internal/datasource/s3"
)
