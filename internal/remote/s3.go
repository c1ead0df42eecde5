package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"ceremony/internal/logging"
)

var (
	_ Store     = (*S3)(nil)
	_ Presigner = (*S3)(nil)
	_ Store     = (*MemStore)(nil)
	_ Presigner = (*MemStore)(nil)
)

// S3 is a Store and Presigner backed by one S3 bucket.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *slog.Logger
}

// Option configures the S3 store during construction.
type Option func(*s3Config) error

type s3Config struct {
	logger   *slog.Logger
	endpoint string
	profile  string
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *s3Config) error {
		cfg.logger = l
		return nil
	}
}

// WithEndpoint points the client at an S3-compatible endpoint using
// path-style addressing.
func WithEndpoint(url string) Option {
	return func(cfg *s3Config) error {
		if url == "" {
			return fmt.Errorf("remote: empty endpoint")
		}
		cfg.endpoint = url
		return nil
	}
}

// WithProfile selects a named profile from the shared AWS config files.
func WithProfile(name string) Option {
	return func(cfg *s3Config) error {
		cfg.profile = name
		return nil
	}
}

// NewS3 loads AWS credentials from the default chain and returns a store
// for bucket in region.
func NewS3(ctx context.Context, bucket, region string, opts ...Option) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("remote: bucket is required")
	}
	if region == "" {
		return nil, fmt.Errorf("remote: region is required")
	}
	cfg := &s3Config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.endpoint)
			o.UsePathStyle = true
		}
	})

	logger := cfg.logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		logger:  logger,
	}, nil
}

// Bucket returns the bucket name.
func (s *S3) Bucket() string { return s.bucket }

// List returns every key under prefix, following continuation tokens.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, newError("list", prefix, false, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	s.logger.DebugContext(ctx, "listed bucket", "bucket", s.bucket, "prefix", prefix, "keys", len(keys))
	return keys, nil
}

// Get opens the object body for key.
func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, newError("get", key, isS3NotFound(err), err)
	}
	return out.Body, nil
}

// Presign returns a URL authorizing method on key until expiry elapses.
func (s *S3) Presign(ctx context.Context, key string, expiry time.Duration, method Method) (string, error) {
	withExpiry := s3.WithPresignExpires(expiry)
	switch method {
	case MethodGet:
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, withExpiry)
		if err != nil {
			return "", newError("presign", key, false, err)
		}
		return req.URL, nil
	case MethodPut:
		req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, withExpiry)
		if err != nil {
			return "", newError("presign", key, false, err)
		}
		return req.URL, nil
	default:
		return "", newError("presign", key, false, fmt.Errorf("unsupported method %q", method))
	}
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
