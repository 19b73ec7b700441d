package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/siteops-app/apiserver/internal/storage"
	"github.com/siteops-app/apiserver/types"
)

var (
	// ErrNoPhotoStorage rejects photo operations when no object storage
	// backend is configured for the deployment.
	ErrNoPhotoStorage = errors.New("photo storage not configured")

	// ErrNoPhoto reports that the delivery has no photo attached.
	ErrNoPhoto = errors.New("delivery has no photo")
)

// DeliveryRepository defines persistence operations for deliveries.
type DeliveryRepository interface {
	Get(ctx context.Context, id int) (types.Delivery, error)
	ListByProject(ctx context.Context, projectID, offset, limit int) ([]types.Delivery, int, error)
	Create(ctx context.Context, d types.Delivery) (types.Delivery, error)
	Update(ctx context.Context, d types.Delivery) (types.Delivery, error)
	SoftDelete(ctx context.Context, id int) error
}

// DeliveryService encapsulates delivery use-cases, including proof-of-
// delivery photo uploads.
type DeliveryService struct {
	repo   DeliveryRepository
	photos *storage.PhotoStore
	queue  *SyncQueue
}

func NewDeliveryService(repo DeliveryRepository, photos *storage.PhotoStore, queue *SyncQueue) *DeliveryService {
	return &DeliveryService{repo: repo, photos: photos, queue: queue}
}

func (s *DeliveryService) Get(ctx context.Context, id int) (types.Delivery, error) {
	return s.repo.Get(ctx, id)
}

func (s *DeliveryService) ListByProject(ctx context.Context, projectID, offset, limit int) ([]types.Delivery, int, error) {
	return s.repo.ListByProject(ctx, projectID, offset, limit)
}

func (s *DeliveryService) Create(ctx context.Context, actor types.SessionIdentity, d types.Delivery) (types.Delivery, error) {
	created, err := s.repo.Create(ctx, d)
	if err != nil {
		return types.Delivery{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityDeliveries, created)
	return created, nil
}

func (s *DeliveryService) Update(ctx context.Context, actor types.SessionIdentity, d types.Delivery) (types.Delivery, error) {
	updated, err := s.repo.Update(ctx, d)
	if err != nil {
		return types.Delivery{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityDeliveries, updated)
	return updated, nil
}

func (s *DeliveryService) Delete(ctx context.Context, actor types.SessionIdentity, id int) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	now := time.Now().UTC()
	d.DeletedAt = &now
	d.UpdatedAt = now
	s.queue.QueueChange(ctx, actor.ID, EntityDeliveries, d)
	return nil
}

// AttachPhoto uploads a proof-of-delivery photo and records its key on the
// delivery. The previous photo, if any, is removed from storage afterwards
// so a failed upload never orphans the delivery's current photo.
func (s *DeliveryService) AttachPhoto(ctx context.Context, actor types.SessionIdentity, id int, r io.Reader, size int64, contentType string) (types.Delivery, error) {
	if s.photos == nil {
		return types.Delivery{}, ErrNoPhotoStorage
	}

	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Delivery{}, err
	}

	key, err := s.photos.PutDeliveryPhoto(ctx, id, r, size, contentType)
	if err != nil {
		return types.Delivery{}, err
	}

	previous := d.PhotoKey
	d.PhotoKey = key
	updated, err := s.repo.Update(ctx, d)
	if err != nil {
		return types.Delivery{}, err
	}
	if previous != "" && previous != key {
		_ = s.photos.Delete(ctx, previous)
	}

	s.queue.QueueChange(ctx, actor.ID, EntityDeliveries, updated)
	return updated, nil
}

// PhotoReader opens the delivery's stored photo.
func (s *DeliveryService) PhotoReader(ctx context.Context, id int) (io.ReadCloser, error) {
	if s.photos == nil {
		return nil, ErrNoPhotoStorage
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.PhotoKey == "" {
		return nil, ErrNoPhoto
	}
	return s.photos.Get(ctx, d.PhotoKey)
}
