// Package datasource lists and opens the files of a stage. Stage backends
// register themselves by URL scheme; import ingest/internal/datasource/all to
// link every backend.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"ingest/internal/config"
)

// FileInfo describes one stage file. Path is relative to the stage root.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	// ETag is the backend's content tag when it has one.
	ETag string
}

// Fingerprint identifies a file version for the load history. Two listings of
// an unchanged file give the same fingerprint.
func (f FileInfo) Fingerprint() uint64 {
	var b strings.Builder
	b.WriteString(f.Path)
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(f.Size, 10))
	b.WriteByte(0)
	if !f.ModTime.IsZero() {
		b.WriteString(strconv.FormatInt(f.ModTime.UTC().UnixNano(), 10))
	}
	b.WriteByte(0)
	b.WriteString(f.ETag)
	return xxh3.HashString(b.String())
}

// Stage is a read-only view of a storage location.
type Stage interface {
	// List returns every file under the stage root.
	List(ctx context.Context) ([]FileInfo, error)
	// Open returns a byte stream for a listed path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Remover is implemented by stages that can delete files (purge).
type Remover interface {
	Remove(ctx context.Context, path string) error
}

// ErrStageNotFound is returned for an unknown URL scheme or a stage root that
// does not exist.
var ErrStageNotFound = errors.New("stage not found")

// ListError wraps a failure to enumerate a stage.
type ListError struct {
	URL string
	Err error
}

func (e *ListError) Error() string { return fmt.Sprintf("list %s: %v", e.URL, e.Err) }
func (e *ListError) Unwrap() error { return e.Err }

// Factory builds a stage for a parsed URL.
type Factory func(ctx context.Context, u *url.URL, opts config.Options) (Stage, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a factory available under the given URL schemes.
func Register(f Factory, schemes ...string) {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range schemes {
		registry[strings.ToLower(s)] = f
	}
}

// Open builds the stage for rawURL. A URL without a scheme is a local path.
func Open(ctx context.Context, rawURL string, opts config.Options) (Stage, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	mu.RLock()
	f, ok := registry[u.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no backend for scheme %q", ErrStageNotFound, u.Scheme)
	}
	if opts == nil {
		opts = config.Options{}
	}
	return f(ctx, u, opts)
}

// ParseURL parses a stage URL, mapping bare paths to the file scheme.
func ParseURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrStageNotFound)
	}
	if !strings.Contains(rawURL, "://") {
		return &url.URL{Scheme: "file", Path: rawURL}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse stage url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// List lists a stage, wrapping failures in a ListError.
func List(ctx context.Context, s Stage, rawURL string) ([]FileInfo, error) {
	files, err := s.List(ctx)
	if err != nil {
		var le *ListError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &ListError{URL: rawURL, Err: err}
	}
	return files, nil
}

// SortByPath sorts files by path in place.
func SortByPath(files []FileInfo) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
