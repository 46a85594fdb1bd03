package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadList(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "manifest.txt")
	content := `
# nightly drop
orders/2024-01-01.csv
   # indented comment
https://example.org/extra.csv

   orders/2024-01-02.csv
`
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	got, err := ReadList(p)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"orders/2024-01-01.csv",
		"https://example.org/extra.csv",
		"orders/2024-01-02.csv",
	}, got)
}

func TestReadList_Missing(t *testing.T) {
	t.Parallel()
	_, err := ReadList(filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
