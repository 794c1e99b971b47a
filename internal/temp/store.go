package temp

import (
	"io"
	"os"
	"path/filepath"
)

// Store stages incoming upload files on local disk until they are pushed to
// the blob store. Staged files are private to one request and must be removed
// on every exit path.
type Store struct {
	basePath string
}

// NewStore creates a Store rooted at basePath.
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Store{basePath: basePath}, nil
}

// Stage copies an incoming file to disk and returns its staged path.
func (s *Store) Stage(token, name string, data io.Reader) (string, error) {
	dest := filepath.Join(s.basePath, token, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	tmpPath := dest + ".partial"
	file, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return dest, nil
}

// Remove deletes one staged file. Missing files are fine: cleanup runs on
// every exit path and may race its own success path.
func (s *Store) Remove(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// RemoveSession deletes everything staged for one token.
func (s *Store) RemoveSession(token string) error {
	return os.RemoveAll(filepath.Join(s.basePath, token))
}
