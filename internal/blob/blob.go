package blob

import (
	"context"
	"time"
)

// Store exposes the subset of blob-store functionality the ingestion and
// retention pipelines need. Durable references are fully-qualified store
// URIs; Delete on a missing object is not an error.
type Store interface {
	Upload(ctx context.Context, localPath, destPath string) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	SignedURL(ref string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, ref string) error
}
