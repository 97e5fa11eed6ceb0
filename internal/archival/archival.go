// Package archival mirrors facts deleted by a Storage.Purge call to cold
// storage before they are gone from the live graph, following
// core/pkg/artifacts' content-addressed store/factory split (FileStore/
// S3Store/GCSStore behind one Store interface, selected by an env-driven
// factory). Unlike the teacher's Store, which hashes the blob it is given,
// Archiver is keyed by the caller-supplied key: a purged fact already
// carries its own content hash (pkg/fact), so there is nothing left to
// rehash.
package archival

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sigilrun/sigilgraph/pkg/fact"
)

// Archiver is the cold-storage contract a backend must implement.
type Archiver interface {
	// Store persists data under key, overwriting any prior blob at that
	// key (mirroring is idempotent: re-archiving a purged fact after a
	// crash just rewrites the same bytes).
	Store(ctx context.Context, key string, data []byte) error
	// Get retrieves the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the blob stored under key, if any.
	Delete(ctx context.Context, key string) error
}

// Key returns the archive key a purged fact is mirrored under: its type
// and content hash, namespaced the way the teacher's blob stores
// namespace by hash prefix.
func Key(ref fact.Reference) string {
	return ref.Type + "/" + ref.Hash + ".json"
}

// Mirror archives every fact in facts to a, so a caller can safely hand
// the same slice to Storage.Purge afterward. Facts are archived in order;
// the first failure stops the mirror and is returned, leaving the
// remaining facts unmirrored (and therefore the purge that follows should
// not proceed past them).
func Mirror(ctx context.Context, a Archiver, facts []*fact.Fact) error {
	for _, f := range facts {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("archival: marshaling fact %s: %w", f.Reference(), err)
		}
		if err := a.Store(ctx, Key(f.Reference()), data); err != nil {
			return fmt.Errorf("archival: storing fact %s: %w", f.Reference(), err)
		}
	}
	return nil
}
