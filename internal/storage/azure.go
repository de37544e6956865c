package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore implements ObjectStore for Azure Blob Storage. Buckets map to
// containers.
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore creates a client with shared-key credentials. endpoint
// overrides the default account URL (e.g. for Azurite).
func NewAzureStore(accountName, accountKey, endpoint string) (*AzureStore, error) {
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY are required")
	}
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	serviceURL := endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureStore{client: client}, nil
}

// Name returns the provider name
func (a *AzureStore) Name() string { return "azure" }

// BucketExists checks if the container exists
func (a *AzureStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := a.client.ServiceClient().NewContainerClient(bucket).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check container %s: %w", bucket, err)
}

// CreateBucket creates a container without public access
func (a *AzureStore) CreateBucket(ctx context.Context, bucket string) error {
	_, err := a.client.CreateContainer(ctx, bucket, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", bucket, err)
	}
	return nil
}

// ListKeys lists every blob name in the container
func (a *AzureStore) ListKeys(ctx context.Context, bucket string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	pager := a.client.NewListBlobsFlatPager(bucket, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs in %s: %w", bucket, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil || strings.HasSuffix(*item.Name, "/") {
				continue
			}
			if item.Properties == nil || item.Properties.ContentLength == nil {
				continue
			}
			keys[*item.Name] = struct{}{}
		}
	}
	return keys, nil
}

// Upload streams one blob
func (a *AzureStore) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := a.client.UploadStream(ctx, bucket, key, body, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}
