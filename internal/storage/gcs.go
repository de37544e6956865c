package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore implements ObjectStore for Google Cloud Storage
type GCSStore struct {
	client    *storage.Client
	projectID string
}

// NewGCSStore creates a GCS client from a credentials file, or from the
// default credentials when the path is empty
func NewGCSStore(ctx context.Context, projectID, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, projectID: projectID}, nil
}

// Name returns the provider name
func (g *GCSStore) Name() string { return "gcs" }

// BucketExists checks if the bucket exists
func (g *GCSStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := g.client.Bucket(bucket).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
}

// CreateBucket creates a bucket with uniform access and public access prevention enforced
func (g *GCSStore) CreateBucket(ctx context.Context, bucket string) error {
	if g.projectID == "" {
		return fmt.Errorf("cannot create bucket %s: GCS_PROJECT_ID is not set", bucket)
	}
	attrs := &storage.BucketAttrs{
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
		PublicAccessPrevention:   storage.PublicAccessPreventionEnforced,
	}
	if err := g.client.Bucket(bucket).Create(ctx, g.projectID, attrs); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// ListKeys lists every object name in the bucket
func (g *GCSStore) ListKeys(ctx context.Context, bucket string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	it := g.client.Bucket(bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", bucket, err)
		}
		if attrs.Name == "" || (attrs.Size == 0 && strings.HasSuffix(attrs.Name, "/")) {
			continue
		}
		keys[attrs.Name] = struct{}{}
	}
	return keys, nil
}

// Upload writes one object. A failed read cancels the writer's context so
// the partial object is never committed.
func (g *GCSStore) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	obj := g.client.Bucket(bucket).Object(key)
	return writeObject(ctx, func(ctx context.Context) io.WriteCloser {
		w := obj.NewWriter(ctx)
		w.ContentType = contentType
		return w
	}, body, bucket+"/"+key)
}

// writeObject copies body into a writer opened on a cancellable context.
// Close commits the object, so a copy failure cancels first.
func writeObject(ctx context.Context, open func(context.Context) io.WriteCloser, body io.Reader, name string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := open(ctx)
	if _, err := io.Copy(w, body); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

// Close releases the client
func (g *GCSStore) Close() error {
	return g.client.Close()
}
