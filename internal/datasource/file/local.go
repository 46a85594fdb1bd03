// Package file implements a local filesystem stage.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"ingest/internal/config"
	"ingest/internal/datasource"
)

func init() {
	datasource.Register(func(_ context.Context, u *url.URL, _ config.Options) (datasource.Stage, error) {
		root := u.Path
		if u.Host != "" && u.Host != "localhost" {
			root = filepath.Join(u.Host, u.Path)
		}
		return NewLocal(root)
	}, "file")
}

// Local is a stage rooted at a directory on the local disk. It is safe for
// concurrent use.
type Local struct{ root string }

// NewLocal returns a stage rooted at root, which must be an existing
// directory.
func NewLocal(root string) (*Local, error) {
	st, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", datasource.ErrStageNotFound, root)
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", datasource.ErrStageNotFound, root)
	}
	return &Local{root: root}, nil
}

// List walks the root recursively and returns regular files with
// slash-separated relative paths.
func (l *Local) List(ctx context.Context) ([]datasource.FileInfo, error) {
	var out []datasource.FileInfo
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		out = append(out, datasource.FileInfo{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	datasource.SortByPath(out)
	return out, nil
}

// Open opens a file below the root.
//
// If ctx is already canceled Open returns the context error without touching
// the filesystem. Filesystem errors are wrapped with the path and still match
// errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Remove deletes a file below the root.
func (l *Local) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (l *Local) resolve(path string) (string, error) {
	if !fs.ValidPath(path) {
		return "", fmt.Errorf("invalid stage path %q", path)
	}
	return filepath.Join(l.root, filepath.FromSlash(path)), nil
}
