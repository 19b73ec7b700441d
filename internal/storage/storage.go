package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/siteops-app/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// PhotoStore wraps an ObjectStorage backend and owns the key layout for
// delivery proof-of-delivery photos.
type PhotoStore struct {
	backend ObjectStorage
}

// New constructs a PhotoStore for the backend named in config, or nil when
// no backend is configured (photo uploads are then rejected by handlers).
func New(ctx context.Context, cfg config.StorageConfig) (*PhotoStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return NewPhotoStore(backend), nil
	case "gcs":
		backend, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return NewPhotoStore(backend), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// NewPhotoStore wraps an already constructed backend. Used by tests.
func NewPhotoStore(backend ObjectStorage) *PhotoStore {
	return &PhotoStore{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *PhotoStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// PutDeliveryPhoto uploads a photo for the delivery and returns its key.
func (s *PhotoStore) PutDeliveryPhoto(ctx context.Context, deliveryID int, r io.Reader, size int64, contentType string) (string, error) {
	key := fmt.Sprintf("deliveries/%d/%s", deliveryID, uuid.NewString())
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Get opens a reader for a stored photo.
func (s *PhotoStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes a stored photo.
func (s *PhotoStore) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *PhotoStore) Bucket() string {
	return s.backend.Bucket()
}
