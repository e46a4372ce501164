package gcs

import (
	"context"
	"fmt"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// BlobStore writes image blobs into a Firebase storage bucket and returns
// tokenized download URLs the mobile clients can fetch without auth.
type BlobStore struct {
	client *storage.Client
	bucket string
}

func NewBlobStore(ctx context.Context, bucket string) (*BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required for blob store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &BlobStore{client: client, bucket: bucket}, nil
}

func (b *BlobStore) Close() error { return b.client.Close() }

// SavePNG uploads the blob and returns its Firebase download URL. The access
// token must be set as firebaseStorageDownloadTokens metadata for the URL
// scheme to work.
func (b *BlobStore) SavePNG(ctx context.Context, name string, data []byte) (string, error) {
	token := uuid.NewString()

	w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "image/png"
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", name, err)
	}

	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		b.bucket, url.PathEscape(name), token), nil
}
