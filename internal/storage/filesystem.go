package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Buckets used by the service. Images hold JPEG bytes, vectors hold encoded
// style codes; an artifact uses the same id in both.
const (
	BucketImages  = "images"
	BucketVectors = "vectors"
)

// ErrNotFound is returned by Get when no object exists under the id.
var ErrNotFound = errors.New("storage: object not found")

// FileStore persists artifact bytes onto the local filesystem, one
// directory per bucket.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Put stores data in bucket under id, or under a fresh UUID when id is
// empty, and returns the id used.
func (s *FileStore) Put(ctx context.Context, bucket string, data []byte, id string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	fullPath, err := s.path(bucket, id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: commit file: %w", err)
	}
	return filepath.Base(fullPath), nil
}

// Get reads the object stored in bucket under id.
func (s *FileStore) Get(ctx context.Context, bucket, id string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.path(bucket, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, id)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// Delete removes the given ids from bucket. Missing objects are ignored.
func (s *FileStore) Delete(ctx context.Context, bucket string, ids []string) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		fullPath, err := s.path(bucket, id)
		if err != nil {
			return err
		}
		if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %s/%s: %w", bucket, id, err)
		}
	}
	return nil
}

func (s *FileStore) path(bucket, id string) (string, error) {
	b, err := sanitizeKey(bucket)
	if err != nil || strings.Contains(b, "/") {
		return "", fmt.Errorf("storage: invalid bucket %q", bucket)
	}
	key, err := sanitizeKey(id)
	if err != nil || strings.Contains(key, "/") {
		return "", fmt.Errorf("storage: invalid id %q", id)
	}
	return filepath.Join(s.basePath, b, key), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
