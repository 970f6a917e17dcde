package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the base used for object URLs, e.g. a CDN.
	PublicURL string
}

// MinIO stores objects in an S3-compatible bucket with anonymous read access.
type MinIO struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

func NewMinIO(ctx context.Context, opts MinIOOptions) (*MinIO, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		slog.Info("storage bucket created", "bucket", opts.Bucket)
	}
	if err := client.SetBucketPolicy(ctx, opts.Bucket, fmt.Sprintf(publicReadPolicy, opts.Bucket)); err != nil {
		return nil, fmt.Errorf("failed to set bucket policy: %w", err)
	}

	return &MinIO{
		client:  client,
		bucket:  opts.Bucket,
		baseURL: minioBaseURL(opts),
	}, nil
}

func minioBaseURL(opts MinIOOptions) string {
	if opts.PublicURL != "" {
		return strings.TrimRight(opts.PublicURL, "/")
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + opts.Endpoint + "/" + opts.Bucket
}

func (m *MinIO) Put(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectPath, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio upload failed: %w", err)
	}
	return nil
}

// Delete relies on S3 semantics: removing a missing key succeeds.
func (m *MinIO) Delete(ctx context.Context, objectPath string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete failed: %w", err)
	}
	return nil
}

func (m *MinIO) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, objectPath, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

func (m *MinIO) URL(objectPath string) string {
	return m.baseURL + "/" + escapePath(objectPath)
}
