// Package azblob implements an Azure Blob Storage stage.
//
// URL form: azblob://container/prefix/. Options: connection_string, or
// account_name with account_key or sas_token; endpoint overrides the service
// URL (Azurite).
package azblob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"ingest/internal/config"
	"ingest/internal/datasource"
)

func init() {
	datasource.Register(func(_ context.Context, u *url.URL, opts config.Options) (datasource.Stage, error) {
		return New(u, opts)
	}, "azblob", "azure")
}

// Stage lists and reads blobs under container/prefix.
type Stage struct {
	client    *azblob.Client
	container string
	prefix    string
}

// New creates a blob client from opts.
func New(u *url.URL, opts config.Options) (*Stage, error) {
	container, prefix, err := ParsePath(u)
	if err != nil {
		return nil, err
	}
	client, err := newClient(opts)
	if err != nil {
		return nil, fmt.Errorf("azblob stage: %w", err)
	}
	return &Stage{client: client, container: container, prefix: prefix}, nil
}

func newClient(opts config.Options) (*azblob.Client, error) {
	if cs := opts.String("connection_string", ""); cs != "" {
		return azblob.NewClientFromConnectionString(cs, nil)
	}
	account := opts.String("account_name", "")
	if account == "" {
		return nil, fmt.Errorf("account_name or connection_string is required")
	}
	serviceURL := opts.String("endpoint", fmt.Sprintf("https://%s.blob.core.windows.net/", account))

	if sas := opts.String("sas_token", ""); sas != "" {
		return azblob.NewClientWithNoCredential(strings.TrimSuffix(serviceURL, "/")+"/?"+strings.TrimPrefix(sas, "?"), nil)
	}
	cred, err := azblob.NewSharedKeyCredential(account, opts.String("account_key", ""))
	if err != nil {
		return nil, fmt.Errorf("shared key credential: %w", err)
	}
	return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
}

// ParsePath splits azblob://container/prefix. A non-empty prefix ends in "/".
func ParsePath(u *url.URL) (container, prefix string, err error) {
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: azblob url %q has no container", datasource.ErrStageNotFound, u.String())
	}
	prefix = strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// List pages through the flat blob listing.
func (s *Stage) List(ctx context.Context) ([]datasource.FileInfo, error) {
	var opts azblob.ListBlobsFlatOptions
	if s.prefix != "" {
		opts.Prefix = &s.prefix
	}
	pager := s.client.NewListBlobsFlatPager(s.container, &opts)
	var out []datasource.FileInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azblob list %s/%s: %w", s.container, s.prefix, err)
		}
		for _, b := range page.Segment.BlobItems {
			if b.Name == nil {
				continue
			}
			fi := datasource.FileInfo{Path: strings.TrimPrefix(*b.Name, s.prefix)}
			if p := b.Properties; p != nil {
				if p.ContentLength != nil {
					fi.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					fi.ModTime = *p.LastModified
				}
				if p.ETag != nil {
					fi.ETag = strings.Trim(string(*p.ETag), `"`)
				}
			}
			out = append(out, fi)
		}
	}
	datasource.SortByPath(out)
	return out, nil
}

// Open streams a blob.
func (s *Stage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, s.prefix+path, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob get %s/%s%s: %w", s.container, s.prefix, path, err)
	}
	return resp.Body, nil
}

// Remove deletes a blob.
func (s *Stage) Remove(ctx context.Context, path string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, s.prefix+path, nil); err != nil {
		return fmt.Errorf("azblob delete %s/%s%s: %w", s.container, s.prefix, path, err)
	}
	return nil
}
