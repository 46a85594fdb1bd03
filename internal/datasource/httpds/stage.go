package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ingest/internal/config"
	"ingest/internal/datasource"
	"ingest/internal/datasource/file"
)

func init() {
	datasource.Register(func(_ context.Context, u *url.URL, opts config.Options) (datasource.Stage, error) {
		return NewStage(u, opts)
	}, "http", "https")
}

// Stage serves files relative to a base URL.
//
// Options:
//
//	files                 []string  relative paths or absolute URLs
//	list                  string    local file with one path/URL per line
//	headers               map       extra request headers
//	max_retries           int       default 3
//	timeout_seconds       int       default 30
//	insecure_skip_verify  bool
//	stat                  bool      HEAD each file while listing (default true)
type Stage struct {
	base   *url.URL
	client *Client
	paths  []string
	stat   bool
}

// NewStage builds an HTTP stage. It fails when neither files nor list is set.
func NewStage(base *url.URL, opts config.Options) (*Stage, error) {
	b := *base
	if !strings.HasSuffix(b.Path, "/") {
		b.Path += "/"
	}
	hdr := http.Header{}
	for k, v := range opts.StringMap("headers") {
		hdr.Set(k, v)
	}
	s := &Stage{
		base: &b,
		client: NewClient(Config{
			Timeout:            time.Duration(opts.Int("timeout_seconds", 30)) * time.Second,
			MaxRetries:         opts.Int("max_retries", 3),
			InsecureSkipVerify: opts.Bool("insecure_skip_verify", false),
			BaseHeaders:        hdr,
		}),
		stat: opts.Bool("stat", true),
	}
	s.paths = append(s.paths, opts.StringSlice("files")...)
	if lf := opts.String("list", ""); lf != "" {
		lines, err := file.ReadList(lf)
		if err != nil {
			return nil, fmt.Errorf("http stage list: %w", err)
		}
		s.paths = append(s.paths, lines...)
	}
	if len(s.paths) == 0 {
		return nil, fmt.Errorf("%w: http stage %s needs a files or list option", datasource.ErrStageNotFound, base.Redacted())
	}
	return s, nil
}

// Resolve turns a stage path into an absolute URL.
func (s *Stage) Resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("http stage path %q: %w", path, err)
	}
	return s.base.ResolveReference(ref).String(), nil
}

// List returns the configured files. With stat enabled each file is probed
// with HEAD for size, modification time and ETag.
func (s *Stage) List(ctx context.Context) ([]datasource.FileInfo, error) {
	out := make([]datasource.FileInfo, 0, len(s.paths))
	for _, p := range s.paths {
		fi := datasource.FileInfo{Path: p, Size: -1}
		if s.stat {
			u, err := s.Resolve(p)
			if err != nil {
				return nil, err
			}
			resp, err := s.client.Head(ctx, u)
			if err != nil {
				return nil, err
			}
			_ = resp.Body.Close()
			fi.Size = resp.ContentLength
			fi.ETag = strings.Trim(resp.Header.Get("ETag"), `"`)
			if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
				fi.ModTime = lm
			}
		}
		out = append(out, fi)
	}
	datasource.SortByPath(out)
	return out, nil
}

// Open fetches a file with GET.
func (s *Stage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	u, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
