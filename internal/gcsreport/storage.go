package gcsreport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ObjectStore provides the object storage operations the archive needs.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// WriteObject stores data under bucket/object, replacing any existing object.
	WriteObject(ctx context.Context, bucket, object string, data []byte, contentType string) error

	// ReadObject returns the bytes stored under bucket/object.
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// GCSObjectStore is the concrete ObjectStore backed by Google Cloud Storage.
// It assumes Application Default Credentials are configured.
type GCSObjectStore struct {
	client *storage.Client
}

// NewGCSObjectStore creates a storage client.
func NewGCSObjectStore(ctx context.Context) (*GCSObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSObjectStore{client: client}, nil
}

// Close closes the storage client.
func (s *GCSObjectStore) Close() error {
	return s.client.Close()
}

// WriteObject implements ObjectStore.
func (s *GCSObjectStore) WriteObject(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object %s/%s: %w", bucket, object, err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s/%s: %w", bucket, object, err)
	}
	return nil
}

// ReadObject implements ObjectStore.
func (s *GCSObjectStore) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader %s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

var _ ObjectStore = (*GCSObjectStore)(nil)
