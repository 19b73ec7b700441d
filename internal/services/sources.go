package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// Entity names served by the sync reconciler. These are wire-level values
// the mobile client sends in pull requests.
const (
	EntityProjects   = "projects"
	EntityTasks      = "tasks"
	EntityDeliveries = "deliveries"
	EntityEquipment  = "equipment"
)

// changeSource adapts one repository's ChangesSince to the SyncSource
// interface. fetch loads changed rows; stamps extracts the timestamps the
// reconciler partitions on.
type changeSource[T any] struct {
	entity string
	fetch  func(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]T, error)
	stamps func(T) (created, updated time.Time, deleted *time.Time)
}

func (s changeSource[T]) Entity() string { return s.entity }

func (s changeSource[T]) ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.SyncRecord, error) {
	items, err := s.fetch(ctx, viewer, since)
	if err != nil {
		return nil, err
	}
	records := make([]types.SyncRecord, 0, len(items))
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		created, updated, deleted := s.stamps(item)
		records = append(records, types.SyncRecord{
			Payload:   payload,
			CreatedAt: created,
			UpdatedAt: updated,
			DeletedAt: deleted,
		})
	}
	return records, nil
}

// ProjectChanges is the slice of ProjectRepository the project source needs.
type ProjectChanges interface {
	ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Project, error)
}

// TaskChanges is the slice of TaskRepository the task source needs.
type TaskChanges interface {
	ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Task, error)
}

// DeliveryChanges is the slice of DeliveryRepository the delivery source needs.
type DeliveryChanges interface {
	ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Delivery, error)
}

// EquipmentChanges is the slice of EquipmentRepository the equipment source needs.
type EquipmentChanges interface {
	ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Equipment, error)
}

// NewProjectSource builds the sync source for projects.
func NewProjectSource(repo ProjectChanges) SyncSource {
	return changeSource[types.Project]{
		entity: EntityProjects,
		fetch:  repo.ChangesSince,
		stamps: func(p types.Project) (time.Time, time.Time, *time.Time) {
			return p.CreatedAt, p.UpdatedAt, p.DeletedAt
		},
	}
}

// NewTaskSource builds the sync source for tasks.
func NewTaskSource(repo TaskChanges) SyncSource {
	return changeSource[types.Task]{
		entity: EntityTasks,
		fetch:  repo.ChangesSince,
		stamps: func(t types.Task) (time.Time, time.Time, *time.Time) {
			return t.CreatedAt, t.UpdatedAt, t.DeletedAt
		},
	}
}

// NewDeliverySource builds the sync source for deliveries.
func NewDeliverySource(repo DeliveryChanges) SyncSource {
	return changeSource[types.Delivery]{
		entity: EntityDeliveries,
		fetch:  repo.ChangesSince,
		stamps: func(d types.Delivery) (time.Time, time.Time, *time.Time) {
			return d.CreatedAt, d.UpdatedAt, d.DeletedAt
		},
	}
}

// NewEquipmentSource builds the sync source for equipment.
func NewEquipmentSource(repo EquipmentChanges) SyncSource {
	return changeSource[types.Equipment]{
		entity: EntityEquipment,
		fetch:  repo.ChangesSince,
		stamps: func(e types.Equipment) (time.Time, time.Time, *time.Time) {
			return e.CreatedAt, e.UpdatedAt, e.DeletedAt
		},
	}
}
