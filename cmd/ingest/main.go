// Command ingest bulk-loads staged files into a relational table.
//
//	ingest run -c load.yaml -v
//	ingest validate -c load.yaml
//	ingest list -c load.yaml
package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	// register every stage and storage backend; the load file picks one.
	_ "ingest/internal/datasource/all"
	_ "ingest/internal/storage/all"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("env: %v", err)
	}
	os.Exit(execute(os.Args[1:]))
}
