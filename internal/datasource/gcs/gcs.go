// Package gcs implements a Google Cloud Storage stage.
//
// URL form: gs://bucket/prefix/. Options: credentials_file (service account
// JSON), endpoint (emulators), anonymous (bool).
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"ingest/internal/config"
	"ingest/internal/datasource"
)

func init() {
	datasource.Register(func(ctx context.Context, u *url.URL, opts config.Options) (datasource.Stage, error) {
		return New(ctx, u, opts)
	}, "gs", "gcs")
}

// Stage lists and reads objects under bucket/prefix.
type Stage struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a storage client from opts.
func New(ctx context.Context, u *url.URL, opts config.Options) (*Stage, error) {
	bucket, prefix, err := ParsePath(u)
	if err != nil {
		return nil, err
	}
	var copts []option.ClientOption
	if f := opts.String("credentials_file", ""); f != "" {
		copts = append(copts, option.WithAuthCredentialsFile(option.ServiceAccount, f))
	}
	if ep := opts.String("endpoint", ""); ep != "" {
		copts = append(copts, option.WithEndpoint(ep))
	}
	if opts.Bool("anonymous", false) {
		copts = append(copts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("gcs stage: create client: %w", err)
	}
	return &Stage{client: client, bucket: bucket, prefix: prefix}, nil
}

// ParsePath splits gs://bucket/prefix. A non-empty prefix always ends in "/".
func ParsePath(u *url.URL) (bucket, prefix string, err error) {
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: gcs url %q has no bucket", datasource.ErrStageNotFound, u.String())
	}
	prefix = strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// List iterates the objects under the prefix.
func (s *Stage) List(ctx context.Context) ([]datasource.FileInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	var out []datasource.FileInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list gs://%s/%s: %w", s.bucket, s.prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, datasource.FileInfo{
			Path:    strings.TrimPrefix(attrs.Name, s.prefix),
			Size:    attrs.Size,
			ModTime: attrs.Updated,
			ETag:    attrs.Etag,
		})
	}
	datasource.SortByPath(out)
	return out, nil
}

// Open streams an object.
func (s *Stage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.prefix + path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get gs://%s/%s%s: %w", s.bucket, s.prefix, path, err)
	}
	return r, nil
}

// Remove deletes an object.
func (s *Stage) Remove(ctx context.Context, path string) error {
	if err := s.client.Bucket(s.bucket).Object(s.prefix + path).Delete(ctx); err != nil {
		return fmt.Errorf("gcs delete gs://%s/%s%s: %w", s.bucket, s.prefix, path, err)
	}
	return nil
}

// Close releases the client.
func (s *Stage) Close() error { return s.client.Close() }
