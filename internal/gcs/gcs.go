// Package gcs reads configuration objects from Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Fetcher downloads an object by gs:// URI. This interface enables mocking
// in code that loads remote files.
type Fetcher interface {
	Fetch(ctx context.Context, gcsURI string) ([]byte, error)
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !IsURI(gcsURI) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	return parts[0], parts[1], nil
}

// StorageFetcher is the Fetcher backed by Cloud Storage. It assumes
// Application Default Credentials are configured.
type StorageFetcher struct{}

// NewStorageFetcher creates a new StorageFetcher.
func NewStorageFetcher() *StorageFetcher {
	return &StorageFetcher{}
}

// Fetch downloads the object bytes.
func (f *StorageFetcher) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	return data, nil
}
