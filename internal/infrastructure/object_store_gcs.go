package infrastructure

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// GCSObjectStore stores objects in a Google Cloud Storage bucket
type GCSObjectStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCSObjectStore creates a store for bucket. The client is owned by the caller.
func NewGCSObjectStore(client *storage.Client, bucket string, logger *zap.Logger) (*GCSObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSObjectStore{client: client, bucket: bucket, logger: logger}, nil
}

// Put uploads body with the given metadata, replacing any existing object
func (s *GCSObjectStore) Put(ctx context.Context, key string, body []byte, meta domain.ObjectMetadata) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = meta.ContentType
	w.CacheControl = meta.CacheControl
	w.ContentDisposition = meta.ContentDisposition
	// single request upload; media is already fully buffered
	w.ChunkSize = 0

	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload gs://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.Debug("Uploaded object",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)))
	return nil
}
