// Package objectstore implements C1: a thin S3/MinIO client keyed by
// (bucket, key), grounded on the R2 client pattern in the pack (aws-sdk-go-v2
// wrapped in a small domain struct) but generalized from one fixed bucket to
// the worker's three buckets (spec.md §6).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Buckets are the three buckets the worker owns (spec.md §6).
var Buckets = []string{"raw-uploads", "page-cache", "outputs"}

// Client is the C1 contract. No retries inside Client; the caller decides
// (spec.md §4.1).
type Client interface {
	Download(ctx context.Context, bucket, key, localPath string) error
	Upload(ctx context.Context, bucket, key, localPath, contentType string) error
	UploadBytes(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
	EnsureBuckets(ctx context.Context, buckets []string) error
}

// S3Client is the aws-sdk-go-v2-backed implementation, configured for
// MinIO path-style addressing.
type S3Client struct {
	client *s3.Client
}

// Config is the subset of worker config the object store needs.
type Config struct {
	Endpoint  string
	Port      int
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewS3Client builds a client pointed at a MinIO-compatible endpoint.
func NewS3Client(cfg Config) (*S3Client, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s:%d", scheme, cfg.Endpoint, cfg.Port)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	})

	return &S3Client{client: client}, nil
}

// Download fetches bucket/key to localPath. Failure here is fatal to the
// calling stage (spec.md §4.1).
func (c *S3Client) Download(ctx context.Context, bucket, key, localPath string) error {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	return nil
}

// Upload puts the contents of localPath at bucket/key.
func (c *S3Client) Upload(ctx context.Context, bucket, key, localPath, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	return c.UploadBytes(ctx, bucket, key, data, contentType)
}

// UploadBytes puts data at bucket/key directly.
func (c *S3Client) UploadBytes(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Remove deletes bucket/key. Removing a blob that does not exist is
// non-fatal (spec.md §7).
func (c *S3Client) Remove(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// EnsureBuckets creates any bucket that doesn't already exist; a no-op
// when all buckets are present (spec.md §4.1, idempotent).
func (c *S3Client) EnsureBuckets(ctx context.Context, buckets []string) error {
	existing, err := c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	have := make(map[string]bool, len(existing.Buckets))
	for _, b := range existing.Buckets {
		if b.Name != nil {
			have[*b.Name] = true
		}
	}

	for _, name := range buckets {
		if have[name] {
			continue
		}
		_, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(name),
		})
		if err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			var exists *types.BucketAlreadyExists
			if asType(err, &owned) || asType(err, &exists) {
				continue
			}
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

func asType[T error](err error, target *T) bool {
	for err != nil {
		if t, ok := err.(T); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
