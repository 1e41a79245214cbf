package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/embed-archiver/internal/domain"
)

const metaSuffix = ".meta.json"

// FilesystemObjectStore stores objects as files under a base directory, with
// their metadata in a JSON sidecar next to each file
type FilesystemObjectStore struct {
	baseDir string
}

// NewFilesystemObjectStore creates the base directory and returns a store on it
func NewFilesystemObjectStore(baseDir string) (*FilesystemObjectStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FilesystemObjectStore{baseDir: baseDir}, nil
}

// Put writes body and its metadata. Files are written to a temporary name and
// renamed so readers never see a partial object.
func (s *FilesystemObjectStore) Put(ctx context.Context, key string, body []byte, meta domain.ObjectMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode object metadata: %w", err)
	}

	if err := writeFileAtomic(path, body); err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := writeFileAtomic(path+metaSuffix, metaData); err != nil {
		return fmt.Errorf("failed to write metadata of %s: %w", key, err)
	}
	return nil
}

// Path returns the file holding key
func (s *FilesystemObjectStore) Path(key string) (string, error) {
	return s.path(key)
}

func (s *FilesystemObjectStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
