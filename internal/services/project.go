package services

import (
	"context"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// ProjectRepository defines persistence operations for projects.
type ProjectRepository interface {
	Get(ctx context.Context, id int) (types.Project, error)
	List(ctx context.Context, viewer types.SessionIdentity, offset, limit int) ([]types.Project, int, error)
	Create(ctx context.Context, p types.Project) (types.Project, error)
	Update(ctx context.Context, p types.Project) (types.Project, error)
	SoftDelete(ctx context.Context, id int) error
	AddMember(ctx context.Context, projectID, userID int) error
	RemoveMember(ctx context.Context, projectID, userID int) error
}

// ProjectService encapsulates project use-cases. Every mutation is mirrored
// into the sync queue so offline clients learn about it on their next pull.
type ProjectService struct {
	repo  ProjectRepository
	queue *SyncQueue
}

func NewProjectService(repo ProjectRepository, queue *SyncQueue) *ProjectService {
	return &ProjectService{repo: repo, queue: queue}
}

func (s *ProjectService) Get(ctx context.Context, id int) (types.Project, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProjectService) List(ctx context.Context, viewer types.SessionIdentity, offset, limit int) ([]types.Project, int, error) {
	return s.repo.List(ctx, viewer, offset, limit)
}

func (s *ProjectService) Create(ctx context.Context, actor types.SessionIdentity, p types.Project) (types.Project, error) {
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return types.Project{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityProjects, created)
	return created, nil
}

func (s *ProjectService) Update(ctx context.Context, actor types.SessionIdentity, p types.Project) (types.Project, error) {
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return types.Project{}, err
	}
	s.queue.QueueChange(ctx, actor.ID, EntityProjects, updated)
	return updated, nil
}

func (s *ProjectService) Delete(ctx context.Context, actor types.SessionIdentity, id int) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	now := time.Now().UTC()
	p.DeletedAt = &now
	p.UpdatedAt = now
	s.queue.QueueChange(ctx, actor.ID, EntityProjects, p)
	return nil
}

func (s *ProjectService) AddMember(ctx context.Context, projectID, userID int) error {
	return s.repo.AddMember(ctx, projectID, userID)
}

func (s *ProjectService) RemoveMember(ctx context.Context, projectID, userID int) error {
	return s.repo.RemoveMember(ctx, projectID, userID)
}
