package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// NewGCSStore creates a blob store on Google Cloud Storage.
func NewGCSStore(ctx context.Context, bucketName string, opts BlobOptions) (*BlobStore, error) {
	uri := fmt.Sprintf("gs://%s", bucketName)

	bucket, err := blob.OpenBucket(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}
	return newBlobStore(bucket, uri, opts)
}
