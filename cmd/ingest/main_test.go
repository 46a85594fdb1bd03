package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/config"
	"ingest/internal/pipeline"
)

// writeLoad lays out a stage directory with the given files and a YAML load
// file targeting a SQLite database in the same temp dir.
func writeLoad(t *testing.T, files map[string]string, copyOpts string) (cfgPath, dbPath, stageDir string) {
	t.Helper()
	dir := t.TempDir()
	stageDir = filepath.Join(dir, "stage")
	require.NoError(t, os.MkdirAll(stageDir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(stageDir, name), []byte(body), 0o644))
	}
	dbPath = filepath.Join(dir, "out.db")

	cfg := `job: orders
stage:
  url: ` + stageDir + `
pattern: '\.csv$'
table:
  name: orders
  columns:
    - { name: id, type: string }
    - { name: qty, type: int32, nullable: false, default: 1 }
    - { name: note, type: string }
file_format:
  type: csv
  options: { skip_header: 1 }
  missing_field_as: FIELD_DEFAULT
copy:
` + copyOpts + `
storage:
  kind: sqlite
  dsn: ` + dbPath + `
  auto_create_table: true
runtime: { concurrency: 2, batch_size: 2 }
`
	cfgPath = filepath.Join(dir, "load.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, dbPath, stageDir
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errw bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errw)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errw.String(), err
}

func countRows(t *testing.T, dbPath string) int {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "orders"`).Scan(&n))
	return n
}

/*
TestRun_EndToEndSQLite loads two CSV files from a local stage into SQLite
under on_error=continue and checks the printed report and the table.
*/
func TestRun_EndToEndSQLite(t *testing.T) {
	cfgPath, dbPath, _ := writeLoad(t, map[string]string{
		"a.csv":      "id,qty,note\nA1,2,first\nA2\n",
		"b.csv":      "id,qty,note\nB1,notanumber,x\nB2,5,\"\"\n",
		"ignore.txt": "not selected",
	}, "  on_error: continue")

	out, _, err := runCmd(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "a.csv")
	assert.Contains(t, out, "b.csv")
	assert.NotContains(t, out, "ignore.txt")
	assert.Contains(t, out, "first_error_line")

	assert.Equal(t, 3, countRows(t, dbPath))

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var qty int
	require.NoError(t, db.QueryRow(`SELECT qty FROM "orders" WHERE id = 'A2'`).Scan(&qty))
	assert.Equal(t, 1, qty)
}

func TestRun_AbortExitsWithAbortError(t *testing.T) {
	cfgPath, dbPath, _ := writeLoad(t, map[string]string{
		"a.csv": "id,qty,note\nA1,bad,x\n",
	}, "  on_error: abort")

	out, _, err := runCmd(t, "run", "-c", cfgPath)
	var ae *pipeline.AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a.csv", ae.File)
	assert.Contains(t, out, "aborted")
	assert.Zero(t, countRows(t, dbPath))
}

func TestRun_PurgeRemovesLoadedFiles(t *testing.T) {
	cfgPath, _, stageDir := writeLoad(t, map[string]string{
		"a.csv": "id,qty,note\nA1,2,x\n",
	}, "  on_error: continue\n  purge: true")

	_, _, err := runCmd(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(stageDir, "a.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_HistoryFileSkipsSecondRun(t *testing.T) {
	hist := filepath.Join(t.TempDir(), "history.json")
	cfgPath, dbPath, _ := writeLoad(t, map[string]string{
		"a.csv": "id,qty,note\nA1,2,x\n",
	}, "  on_error: continue\n  history_file: "+hist)

	_, _, err := runCmd(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	_, _, err = runCmd(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, dbPath))
}

/*
TestRun_ValidationModeWritesNothing checks that copy.validation_mode reports
every file without creating the target database, recording history or
purging the stage.
*/
func TestRun_ValidationModeWritesNothing(t *testing.T) {
	hist := filepath.Join(t.TempDir(), "history.json")
	cfgPath, dbPath, stageDir := writeLoad(t, map[string]string{
		"a.csv": "id,qty,note\nA1,2,x\nA2,bad,y\n",
	}, "  on_error: continue\n  validation_mode: true\n  purge: true\n  history_file: "+hist)

	out, errOut, err := runCmd(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, errOut, "purge is ignored in validation mode")
	assert.Contains(t, out, "a.csv")
	assert.Contains(t, out, "first_error_line")

	for _, p := range []string{dbPath, hist} {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), p)
	}
	_, statErr := os.Stat(filepath.Join(stageDir, "a.csv"))
	assert.NoError(t, statErr)
}

func TestRun_DryRunFlag(t *testing.T) {
	cfgPath, dbPath, _ := writeLoad(t, map[string]string{
		"a.csv": "id,qty,note\nA1,2,x\n",
	}, "  on_error: continue")

	out, _, err := runCmd(t, "run", "--dry-run", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "a.csv")
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))

	_, _, err = runCmd(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, dbPath), "a dry run leaves the file loadable")
}

/*
TestRun_SizeLimit stops admitting rows once copy.size_limit rows were
accepted across the load.
*/
func TestRun_SizeLimit(t *testing.T) {
	cfgPath, dbPath, _ := writeLoad(t, map[string]string{
		"a.csv": "id,qty,note\nA1,1,x\nA2,2,x\nA3,3,x\n",
		"b.csv": "id,qty,note\nB1,1,x\n",
	}, "  on_error: continue\n  size_limit: 2")

	_, _, err := runCmd(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, dbPath))
}

func TestValidate(t *testing.T) {
	cfgPath, _, _ := writeLoad(t, nil, "  on_error: continue")
	out, _, err := runCmd(t, "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	bad, _, _ := writeLoad(t, nil, "  on_error: abort\n  error_limit: 3")
	_, errOut, err := runCmd(t, "validate", "-c", bad)
	require.Error(t, err)
	assert.Contains(t, errOut, "copy.error_limit")
}

func TestValidate_NullFieldAsErrorRejected(t *testing.T) {
	cfgPath, _, _ := writeLoad(t, nil, "  on_error: continue")
	b, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	patched := strings.Replace(string(b), "missing_field_as: FIELD_DEFAULT", "null_field_as: ERROR", 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(patched), 0o644))

	_, errOut, err := runCmd(t, "validate", "-c", cfgPath)
	require.Error(t, err)
	assert.Contains(t, errOut, "file_format.null_field_as")
}

func TestList(t *testing.T) {
	cfgPath, _, _ := writeLoad(t, map[string]string{
		"b.csv":    "id\n",
		"a.csv":    "id\n",
		"x.ndjson": "{}\n",
	}, "  on_error: continue")
	out, _, err := runCmd(t, "list", "-c", cfgPath)
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "a.csv"), strings.Index(out, "b.csv"))
	assert.NotContains(t, out, "x.ndjson")
}

func TestRuntimeOptions(t *testing.T) {
	t.Setenv("INGEST_CONCURRENCY", "9")
	t.Setenv("INGEST_CH_BUFFER", "junk")
	got := runtimeOptions(config.RuntimeConfig{BatchSize: 7})
	assert.Equal(t, runtimeKnobs{concurrency: 9, channelBuffer: 1024, batchSize: 7, errorSample: 3}, got)
}
