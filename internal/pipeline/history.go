package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// History remembers which file versions were loaded. Keys are
// datasource.FileInfo fingerprints.
type History interface {
	Seen(ctx context.Context, key uint64) (bool, error)
	Record(ctx context.Context, key uint64, r LoadReport) error
}

// MemoryHistory is a process-local History.
type MemoryHistory struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{seen: map[uint64]struct{}{}}
}

func (h *MemoryHistory) Seen(_ context.Context, key uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.seen[key]
	return ok, nil
}

func (h *MemoryHistory) Record(_ context.Context, key uint64, _ LoadReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[key] = struct{}{}
	return nil
}

// historyEntry is one line of a FileHistory document.
type historyEntry struct {
	Path       string    `json:"path"`
	RowsLoaded int64     `json:"rows_loaded"`
	RowsError  int64     `json:"rows_error"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// FileHistory persists the load history as a JSON document so repeated runs
// skip files that were already loaded. The document is rewritten on every
// Record through a temp file and rename.
type FileHistory struct {
	path string

	mu      sync.Mutex
	entries map[string]historyEntry
}

// OpenFileHistory loads path, or starts empty when it does not exist.
func OpenFileHistory(path string) (*FileHistory, error) {
	h := &FileHistory{path: path, entries: map[string]historyEntry{}}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}
	if len(b) == 0 {
		return h, nil
	}
	if err := json.Unmarshal(b, &h.entries); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", path, err)
	}
	return h, nil
}

func (h *FileHistory) Seen(_ context.Context, key uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.entries[strconv.FormatUint(key, 16)]
	return ok, nil
}

func (h *FileHistory) Record(_ context.Context, key uint64, r LoadReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[strconv.FormatUint(key, 16)] = historyEntry{
		Path:       r.Path,
		RowsLoaded: r.RowsLoaded,
		RowsError:  r.RowsError,
		LoadedAt:   time.Now().UTC(),
	}
	b, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*")
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("history: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("history: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("history: %w", err)
	}
	return nil
}
