package services

import (
	"context"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	Get(ctx context.Context, id int) (types.Task, error)
	ListByProject(ctx context.Context, projectID, offset, limit int) ([]types.Task, int, error)
	Create(ctx context.Context, t types.Task) (types.Task, error)
	Update(ctx context.Context, t types.Task) (types.Task, error)
	SoftDelete(ctx context.Context, id int) error
}

// TaskService encapsulates task use-cases.
type TaskService struct {
	repo  TaskRepository
	queue *SyncQueue
}

func NewTaskService(repo TaskRepository, queue *SyncQueue) *TaskService {
	return &TaskService{repo: repo, queue: queue}
}

func (s *TaskService) Get(ctx context.Context, id int) (types.Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *TaskService) ListByProject(ctx context.Context, projectID, offset, limit int) ([]types.Task, int, error) {
	return s.repo.ListByProject(ctx, projectID, offset, limit)
}

func (s *TaskService) Create(ctx context.Context, actor types.SessionIdentity, t types.Task) (types.Task, error) {
	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return types.Task{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityTasks, created)
	return created, nil
}

func (s *TaskService) Update(ctx context.Context, actor types.SessionIdentity, t types.Task) (types.Task, error) {
	updated, err := s.repo.Update(ctx, t)
	if err != nil {
		return types.Task{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityTasks, updated)
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, actor types.SessionIdentity, id int) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	t.UpdatedAt = now
	s.queue.QueueChange(ctx, actor.ID, EntityTasks, t)
	return nil
}
