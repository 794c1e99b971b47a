package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore is the default Store implementation backed by Google Cloud
// Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS-backed store for one bucket. credentialsPath may
// be empty to use ambient credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsPath string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// objectName strips the gs://bucket/ prefix (and any placeholder fragment)
// from a reference, accepting bare object paths as well.
func (g *GCSStore) objectName(ref string) string {
	ref, _, _ = strings.Cut(ref, "#")
	prefix := fmt.Sprintf("gs://%s/", g.bucket)
	return strings.TrimPrefix(ref, prefix)
}

// Upload copies a locally staged file to destPath and returns the durable
// reference.
func (g *GCSStore) Upload(ctx context.Context, localPath, destPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer src.Close()

	object := g.objectName(destPath)
	wc := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(wc, src); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("copy to %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

func (g *GCSStore) Exists(ctx context.Context, ref string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(g.objectName(ref)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *GCSStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.objectName(prefix)})
	var refs []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return refs, nil
		}
		if err != nil {
			return nil, err
		}
		refs = append(refs, fmt.Sprintf("gs://%s/%s", g.bucket, attrs.Name))
	}
}

func (g *GCSStore) SignedURL(ref string, ttl time.Duration) (string, error) {
	return g.client.Bucket(g.bucket).SignedURL(g.objectName(ref), &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
}

// Delete removes an object; a missing object is treated as already deleted.
func (g *GCSStore) Delete(ctx context.Context, ref string) error {
	err := g.client.Bucket(g.bucket).Object(g.objectName(ref)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}
