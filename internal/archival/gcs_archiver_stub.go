//go:build !gcp

package archival

import (
	"context"
	"fmt"
)

// GCSArchiverConfig configures a GCSArchiver; only meaningful in builds
// tagged gcp, where cloud.google.com/go/storage is linked in.
type GCSArchiverConfig struct {
	Bucket string
	Prefix string
}

// NewGCSArchiver fails in default builds, mirroring the teacher's
// factory_nogcp.go: GCS support costs a real import and is only worth
// paying for in deployments that use it.
func NewGCSArchiver(_ context.Context, _ GCSArchiverConfig) (Archiver, error) {
	return nil, fmt.Errorf("archival: GCS archiving is not enabled in this build (use -tags gcp)")
}
