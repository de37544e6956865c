// Package storage mirrors a backup's storage/ tree into bucket-style object
// storage. Each top-level directory under storage/ is one bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/spf13/afero"

	"dbrestore/internal/config"
	"dbrestore/internal/errors"
)

// ObjectStore is the bucket API the synchronizer needs from a provider
type ObjectStore interface {
	// Name returns the provider name for logs
	Name() string

	BucketExists(ctx context.Context, bucket string) (bool, error)

	// CreateBucket creates a private bucket
	CreateBucket(ctx context.Context, bucket string) error

	// ListKeys returns every object key in the bucket, recursively.
	// Directory placeholders are not objects and are left out.
	ListKeys(ctx context.Context, bucket string) (map[string]struct{}, error)

	// Upload writes size bytes from body to bucket/key
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// NewStore builds the ObjectStore selected by cfg.StorageProvider. fsys is
// only used by the local provider.
func NewStore(ctx context.Context, cfg *config.Config, fsys afero.Fs) (ObjectStore, error) {
	switch cfg.StorageProvider {
	case config.ProviderS3:
		return NewS3Store(ctx, S3Options{
			Endpoint:  cfg.StorageEndpoint,
			Region:    cfg.StorageRegion,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			PathStyle: cfg.StoragePathStyle,
		})
	case config.ProviderGCS:
		return NewGCSStore(ctx, cfg.GCSProjectID, cfg.GCSCredentialsFile)
	case config.ProviderAzure:
		return NewAzureStore(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.StorageEndpoint)
	case config.ProviderLocal, "":
		return NewLocalStore(fsys, cfg.StorageLocalRoot), nil
	}
	return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
		fmt.Sprintf("unknown storage provider %q", cfg.StorageProvider),
		"Set STORAGE_PROVIDER to s3, gcs, azure or local")
}

// ContentType guesses a MIME type from the key's extension
func ContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".ndjson", ".jsonl":
		return "application/x-ndjson"
	case ".sql":
		return "application/sql"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
