// Package s3 implements an S3 (and S3-compatible) stage on aws-sdk-go-v2.
//
// URL form: s3://bucket/prefix/. Options: region, endpoint, access_key_id,
// secret_access_key, session_token, path_style (bool), max_retries (int).
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ingest/internal/config"
	"ingest/internal/datasource"
)

func init() {
	datasource.Register(func(ctx context.Context, u *url.URL, opts config.Options) (datasource.Stage, error) {
		return New(ctx, u, opts)
	}, "s3", "s3a")
}

// API is the subset of *s3.Client used by the stage.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Stage lists and reads objects under bucket/prefix.
type Stage struct {
	api    API
	bucket string
	prefix string
}

// New builds an S3 client from opts and the default AWS credential chain.
func New(ctx context.Context, u *url.URL, opts config.Options) (*Stage, error) {
	bucket, prefix, err := ParsePath(u)
	if err != nil {
		return nil, err
	}

	var cfgOpts []func(*awsconfig.LoadOptions) error
	if r := opts.String("region", ""); r != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(r))
	}
	if ak, sk := opts.String("access_key_id", ""), opts.String("secret_access_key", ""); ak != "" && sk != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, opts.String("session_token", "")),
		))
	}
	if n := opts.Int("max_retries", 0); n > 0 {
		cfgOpts = append(cfgOpts, awsconfig.WithRetryMaxAttempts(n))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 stage: load aws config: %w", err)
	}

	endpoint := opts.String("endpoint", "")
	pathStyle := opts.Bool("path_style", endpoint != "")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	return NewWithAPI(client, bucket, prefix), nil
}

// NewWithAPI builds a stage over an existing client.
func NewWithAPI(api API, bucket, prefix string) *Stage {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Stage{api: api, bucket: bucket, prefix: prefix}
}

// ParsePath splits s3://bucket/prefix into its parts.
func ParsePath(u *url.URL) (bucket, prefix string, err error) {
	bucket = u.Host
	if bucket == "" {
		return "", "", fmt.Errorf("%w: s3 url %q has no bucket", datasource.ErrStageNotFound, u.String())
	}
	return bucket, strings.TrimPrefix(u.Path, "/"), nil
}

// List pages through ListObjectsV2. Directory markers are skipped.
func (s *Stage) List(ctx context.Context) ([]datasource.FileInfo, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	var out []datasource.FileInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			out = append(out, datasource.FileInfo{
				Path:    strings.TrimPrefix(key, s.prefix),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
				ETag:    strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}
	datasource.SortByPath(out)
	return out, nil
}

// Open streams an object body.
func (s *Stage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + path),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get s3://%s/%s%s: %w", s.bucket, s.prefix, path, err)
	}
	return out.Body, nil
}

// Remove deletes an object.
func (s *Stage) Remove(ctx context.Context, path string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + path),
	})
	if err != nil {
		return fmt.Errorf("s3 delete s3://%s/%s%s: %w", s.bucket, s.prefix, path, err)
	}
	return nil
}
