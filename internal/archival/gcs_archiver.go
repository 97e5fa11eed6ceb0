//go:build gcp

package archival

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSArchiver is an Archiver backed by Google Cloud Storage, grounded on
// the teacher's GCSStore but keyed by the caller's key.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSArchiverConfig configures a GCSArchiver.
type GCSArchiverConfig struct {
	Bucket string
	Prefix string
}

// NewGCSArchiver returns an Archiver backed by cfg.Bucket, authenticating
// via application default credentials.
func NewGCSArchiver(ctx context.Context, cfg GCSArchiverConfig) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archival: creating GCS client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *GCSArchiver) object(key string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(a.prefix + key)
}

func (a *GCSArchiver) Store(ctx context.Context, key string, data []byte) error {
	w := a.object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("archival: gcs write failed for %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archival: gcs close failed for %s: %w", key, err)
	}
	return nil
}

func (a *GCSArchiver) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := a.object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archival: gcs get failed for %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

func (a *GCSArchiver) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("archival: gcs attrs failed for %s: %w", key, err)
	}
	return true, nil
}

func (a *GCSArchiver) Delete(ctx context.Context, key string) error {
	err := a.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("archival: gcs delete failed for %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}
