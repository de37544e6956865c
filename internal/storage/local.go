package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStore keeps buckets as directories under a root on an afero
// filesystem. It serves the local target and tests.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore creates a store rooted at root
func NewLocalStore(fsys afero.Fs, root string) *LocalStore {
	return &LocalStore{fs: fsys, root: root}
}

// Name returns the provider name
func (l *LocalStore) Name() string { return "local" }

func (l *LocalStore) bucketPath(bucket string) string {
	return filepath.Join(l.root, bucket)
}

// BucketExists checks if the bucket directory exists
func (l *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return afero.DirExists(l.fs, l.bucketPath(bucket))
}

// CreateBucket creates the bucket directory, owner-only
func (l *LocalStore) CreateBucket(ctx context.Context, bucket string) error {
	return l.fs.MkdirAll(l.bucketPath(bucket), 0700)
}

// ListKeys walks the bucket directory
func (l *LocalStore) ListKeys(ctx context.Context, bucket string) (map[string]struct{}, error) {
	base := l.bucketPath(bucket)
	keys := make(map[string]struct{})
	err := afero.Walk(l.fs, base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		keys[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", base, err)
	}
	return keys, nil
}

// Upload writes the object file, creating parent directories
func (l *LocalStore) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	dst := filepath.Join(l.bucketPath(bucket), filepath.FromSlash(key))
	if err := l.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	f, err := l.fs.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short write for %s: %d of %d bytes", dst, n, size)
	}
	return nil
}
