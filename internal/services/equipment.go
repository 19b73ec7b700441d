package services

import (
	"context"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// EquipmentRepository defines persistence operations for fleet items.
type EquipmentRepository interface {
	Get(ctx context.Context, id int) (types.Equipment, error)
	List(ctx context.Context, offset, limit int) ([]types.Equipment, int, error)
	Create(ctx context.Context, e types.Equipment) (types.Equipment, error)
	Update(ctx context.Context, e types.Equipment) (types.Equipment, error)
	SoftDelete(ctx context.Context, id int) error
}

// EquipmentService encapsulates fleet use-cases.
type EquipmentService struct {
	repo  EquipmentRepository
	queue *SyncQueue
}

func NewEquipmentService(repo EquipmentRepository, queue *SyncQueue) *EquipmentService {
	return &EquipmentService{repo: repo, queue: queue}
}

func (s *EquipmentService) Get(ctx context.Context, id int) (types.Equipment, error) {
	return s.repo.Get(ctx, id)
}

func (s *EquipmentService) List(ctx context.Context, offset, limit int) ([]types.Equipment, int, error) {
	return s.repo.List(ctx, offset, limit)
}

func (s *EquipmentService) Create(ctx context.Context, actor types.SessionIdentity, e types.Equipment) (types.Equipment, error) {
	created, err := s.repo.Create(ctx, e)
	if err != nil {
		return types.Equipment{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityEquipment, created)
	return created, nil
}

func (s *EquipmentService) Update(ctx context.Context, actor types.SessionIdentity, e types.Equipment) (types.Equipment, error) {
	updated, err := s.repo.Update(ctx, e)
	if err != nil {
		return types.Equipment{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityEquipment, updated)
	return updated, nil
}

func (s *EquipmentService) Delete(ctx context.Context, actor types.SessionIdentity, id int) error {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.DeletedAt = &now
	e.UpdatedAt = now
	s.queue.QueueChange(ctx, actor.ID, EntityEquipment, e)
	return nil
}
