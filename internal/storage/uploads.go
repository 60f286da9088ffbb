// Package storage archives raw upload files so an import can be re-read
// from the original bytes, and moves them aside once committed.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ignite/lead-import/internal/config"
	"github.com/ignite/lead-import/internal/pkg/logger"
)

// ErrNotFound is returned for keys that do not exist in the archive.
var ErrNotFound = errors.New("upload not found")

// S3API is the subset of the S3 client used by the archive.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Object describes one archived upload.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// S3Archive keeps uploads in one bucket. Processed uploads are copied under
// ProcessedPrefix and the original is deleted.
type S3Archive struct {
	client          S3API
	bucket          string
	uploadPrefix    string
	processedPrefix string
	maxBytes        int64
}

// NewS3Archive loads AWS credentials the default way, with an optional
// shared profile. Static keys take precedence when configured, and Endpoint
// points the client at an S3-compatible store.
func NewS3Archive(ctx context.Context, cfg config.StorageConfig) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	case cfg.AWSProfile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ArchiveWithClient(client, cfg), nil
}

// NewS3ArchiveWithClient builds an archive on an existing client.
func NewS3ArchiveWithClient(client S3API, cfg config.StorageConfig) *S3Archive {
	return &S3Archive{
		client:          client,
		bucket:          cfg.S3Bucket,
		uploadPrefix:    cfg.UploadPrefix,
		processedPrefix: cfg.ProcessedPrefix,
	}
}

// SetMaxBytes makes Get fail for objects larger than n bytes. Zero disables
// the check.
func (a *S3Archive) SetMaxBytes(n int64) {
	a.maxBytes = n
}

// Bucket returns the archive bucket name.
func (a *S3Archive) Bucket() string {
	return a.bucket
}

// Ping checks that the bucket is reachable with the current credentials.
func (a *S3Archive) Ping(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	return nil
}

func (a *S3Archive) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", a.bucket, key, err)
	}
	defer out.Body.Close()

	body := io.Reader(out.Body)
	if a.maxBytes > 0 {
		body = io.LimitReader(out.Body, a.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", a.bucket, key, err)
	}
	if a.maxBytes > 0 && int64(len(data)) > a.maxBytes {
		return nil, fmt.Errorf("s3://%s/%s exceeds %d bytes", a.bucket, key, a.maxBytes)
	}
	return data, nil
}

func (a *S3Archive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := a.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// ProcessedKey returns where an upload is moved once committed.
func (a *S3Archive) ProcessedKey(key string) string {
	return a.processedPrefix + strings.TrimPrefix(key, a.uploadPrefix)
}

// MarkProcessed copies the upload under the processed prefix and deletes
// the original. A failed delete is logged, not returned: the copy exists.
func (a *S3Archive) MarkProcessed(ctx context.Context, key string) (string, error) {
	dest := a.ProcessedKey(key)
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(a.bucket + "/" + key),
		Key:        aws.String(dest),
	})
	if err != nil {
		return "", fmt.Errorf("copy %s to %s: %w", key, dest, err)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		logger.Warn("delete processed upload failed", "key", key, "error", err)
	}
	return dest, nil
}

// List returns the pending uploads under prefix. Keys already moved to the
// processed prefix and empty objects are left out.
func (a *S3Archive) List(ctx context.Context, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})

	objects := []Object{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", a.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if obj.Size == nil || *obj.Size == 0 || strings.HasPrefix(key, a.processedPrefix) {
				continue
			}
			objects = append(objects, Object{
				Key:          key,
				Size:         *obj.Size,
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// UploadPrefix returns the key prefix for new uploads of an organization.
func (a *S3Archive) UploadPrefix(orgID string) string {
	return a.uploadPrefix + orgID + "/"
}
