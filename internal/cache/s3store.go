package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/internal/frame"
)

// S3Config holds explicit construction parameters for an S3 (or MinIO) remote.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional; enables a custom endpoint such as MinIO
	Prefix    string // key prefix prepended to every logical path
	PathStyle bool
}

// S3Store serves artifacts from an S3-compatible bucket, the way a DVC remote
// holds them. Objects are staged through a local temp file for decoding.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	codec  Codec
}

// NewS3Store creates an S3Store using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config, codec Codec) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("cache: s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("cache: failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix, codec), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string, codec Codec) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), codec: codec}
}

// Name implements Store.
func (s *S3Store) Name() string { return "s3" }

// Key maps a logical path to an object key.
func (s *S3Store) Key(logicalPath string) string {
	return path.Join(s.prefix, strings.TrimPrefix(path.Clean("/"+logicalPath), "/"))
}

// Fetch implements Store. NoSuchKey and 404 responses are misses; everything
// else, including access denied, is a read failure.
func (s *S3Store) Fetch(ctx context.Context, ds Dataset) Result {
	key := s.Key(ds.LogicalPath)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return Miss()
		}
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, err))
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "risksharing-*.parquet")
	if err != nil {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, err))
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, out.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, fmt.Errorf("download s3://%s/%s: %w", s.bucket, key, err)))
	}

	t, err := s.codec.ReadFile(ctx, tmp.Name(), ds.Levels...)
	if err != nil {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, err))
	}
	return Hit(t)
}

// Put implements Writer.
func (s *S3Store) Put(ctx context.Context, ds Dataset, t *frame.Table) error {
	dir, err := os.MkdirTemp("", "risksharing-put-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	local := dir + string(os.PathSeparator) + "artifact.parquet"
	if err := s.codec.WriteFile(ctx, local, t); err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	key := s.Key(ds.LogicalPath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		return fmt.Errorf("cache: failed to upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// CheckBucket verifies the bucket is reachable with the current credentials.
func (s *S3Store) CheckBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket})
	return err
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if stderrors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
