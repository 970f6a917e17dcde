// Package storage persists raw file bytes. Records referencing the bytes
// live in the database; this package only knows object paths.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/config"
)

var ErrInvalidPath = errors.New("invalid object path")

type Storage interface {
	// Put writes the object at path, replacing any existing bytes.
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	// Delete removes the object. A missing object is not an error.
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	// URL returns the public address of the object.
	URL(path string) string
}

// New builds the backend selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.StorageDriver {
	case "local":
		return NewLocal(cfg.StoragePath, cfg.AppURL+"/storage")
	case "minio":
		return NewMinIO(ctx, MinIOOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
