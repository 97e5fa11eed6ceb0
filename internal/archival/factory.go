package archival

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sigilrun/sigilgraph/internal/config"
)

// NewFromConfig returns the Archiver cfg.ArchivalBackend selects,
// mirroring core/pkg/artifacts/factory.go's NewStoreFromEnv switch.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Archiver, error) {
	switch cfg.ArchivalBackend {
	case "", "fs":
		return NewFileArchiver(filepath.Join(cfg.ArchivalDataDir))
	case "s3":
		if cfg.ArchivalBucket == "" {
			return nil, fmt.Errorf("archival: SIGILGRAPH_ARCHIVAL_BUCKET is required for s3 backend")
		}
		return NewS3Archiver(ctx, S3ArchiverConfig{
			Bucket:   cfg.ArchivalBucket,
			Region:   cfg.ArchivalRegion,
			Endpoint: cfg.ArchivalEndpoint,
			Prefix:   cfg.ArchivalPrefix,
		})
	case "gcs":
		if cfg.ArchivalBucket == "" {
			return nil, fmt.Errorf("archival: SIGILGRAPH_ARCHIVAL_BUCKET is required for gcs backend")
		}
		return NewGCSArchiver(ctx, GCSArchiverConfig{
			Bucket: cfg.ArchivalBucket,
			Prefix: cfg.ArchivalPrefix,
		})
	default:
		return nil, fmt.Errorf("archival: unsupported backend %q", cfg.ArchivalBackend)
	}
}
