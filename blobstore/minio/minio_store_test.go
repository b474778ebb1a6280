package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprvec/exprvec/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skips when none is reachable.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-exprvec"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	// Put and Open
	data := []byte("block compressed matrix")
	err = store.Put(ctx, "processed/run-1/matrix.exm", data)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "processed/run-1/matrix.exm")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)
	require.NoError(t, blob.Close())

	// ReadRange
	blob2, err := store.Open(ctx, "processed/run-1/matrix.exm")
	require.NoError(t, err)
	rr, ok := blob2.(blobstore.RangeReader)
	require.True(t, ok)
	rc, err := rr.ReadRange(ctx, 6, 10)
	require.NoError(t, err)
	partBuf := make([]byte, 10)
	_, err = rc.Read(partBuf)
	require.NoError(t, err)
	assert.Equal(t, "compressed", string(partBuf))
	require.NoError(t, rc.Close())
	require.NoError(t, blob2.Close())

	// List
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "processed/run-1/matrix.exm")

	// Delete
	err = store.Delete(ctx, "processed/run-1/matrix.exm")
	require.NoError(t, err)

	_, err = store.Open(ctx, "processed/run-1/matrix.exm")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, "processed/run-1/matrix.exm"))

	// Create (streaming)
	wb, err := store.Create(ctx, "models/default/history.json")
	require.NoError(t, err)
	_, err = wb.Write([]byte(`{"epochs":100}`))
	require.NoError(t, err)
	err = wb.Close()
	require.NoError(t, err)

	blob3, err := store.Open(ctx, "models/default/history.json")
	require.NoError(t, err)
	assert.Equal(t, int64(14), blob3.Size())
	require.NoError(t, blob3.Close())

	// Cleanup
	_ = store.Delete(ctx, "models/default/history.json")
}
