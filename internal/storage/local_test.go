package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbrestore/internal/config"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(afero.NewMemMapFs(), "/objects")

	exists, err := store.BucketExists(ctx, "media")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.CreateBucket(ctx, "media"))
	exists, err = store.BucketExists(ctx, "media")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Upload(ctx, "media", "a/b/c.txt", strings.NewReader("abc"), 3, "text/plain"))
	require.NoError(t, store.Upload(ctx, "media", "d.txt", strings.NewReader("d"), 1, "text/plain"))

	keys, err := store.ListKeys(ctx, "media")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a/b/c.txt": {}, "d.txt": {}}, keys)

	err = store.Upload(ctx, "media", "short.txt", strings.NewReader("ab"), 5, "text/plain")
	assert.ErrorContains(t, err, "short write")
}

func TestNewStoreSelectsProvider(t *testing.T) {
	cfg := &config.Config{StorageProvider: config.ProviderLocal, StorageLocalRoot: "/objects"}
	store, err := NewStore(context.Background(), cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	assert.Equal(t, "local", store.Name())

	cfg.StorageProvider = "ftp"
	_, err = NewStore(context.Background(), cfg, afero.NewMemMapFs())
	assert.Error(t, err)

	cfg.StorageProvider = config.ProviderAzure
	_, err = NewStore(context.Background(), cfg, afero.NewMemMapFs())
	assert.ErrorContains(t, err, "AZURE_ACCOUNT_NAME")
}
