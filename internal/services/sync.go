package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/siteops-app/apiserver/internal/mq"
	"github.com/siteops-app/apiserver/types"
)

// ErrUnknownEntity rejects a pull request naming an entity type the
// reconciler has no source for. Nothing is fetched in that case.
var ErrUnknownEntity = errors.New("unknown entity")

// SyncSource supplies one entity type's changed records for a viewer.
// Implementations must honour the viewer's visibility scope and return
// records ascending by update timestamp.
type SyncSource interface {
	Entity() string
	ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.SyncRecord, error)
}

// SyncQueueStore is the persistence surface for queued offline changes.
type SyncQueueStore interface {
	Enqueue(ctx context.Context, item types.SyncQueueItem) (types.SyncQueueItem, error)
	ListPending(ctx context.Context, limit int) ([]types.SyncQueueItem, error)
	SetStatus(ctx context.Context, id int, status string, at time.Time) error
	Status(ctx context.Context, userID int) (types.SyncStatus, error)
}

// Reconciler answers mobile pull-sync requests. It never mutates anything;
// it reads each requested entity through its source and buckets the records
// relative to the client's checkpoint.
type Reconciler struct {
	sources map[string]SyncSource
	order   []string
	queue   SyncQueueStore
	log     *slog.Logger
}

func NewReconciler(queue SyncQueueStore, log *slog.Logger, sources ...SyncSource) *Reconciler {
	byName := make(map[string]SyncSource, len(sources))
	order := make([]string, 0, len(sources))
	for _, src := range sources {
		byName[src.Entity()] = src
		order = append(order, src.Entity())
	}
	return &Reconciler{sources: byName, order: order, queue: queue, log: log}
}

// Entities returns the entity types the reconciler serves, in registration
// order.
func (r *Reconciler) Entities() []string {
	return append([]string(nil), r.order...)
}

// ValidateEntities checks that every requested entity has a source. The
// whole request is rejected on the first unknown name so a typo cannot
// silently drop an entity from the client's dataset.
func (r *Reconciler) ValidateEntities(entities []string) error {
	for _, name := range entities {
		if _, ok := r.sources[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEntity, name)
		}
	}
	return nil
}

// PullChanges resolves a pull request into per-entity change buckets.
// SyncedAt is captured before any source is read, so records written during
// the pull are picked up by the next one instead of being skipped. A source
// failure is isolated to its entity: the failed entity lands in Errors and
// the rest of the result stays complete.
func (r *Reconciler) PullChanges(ctx context.Context, viewer types.SessionIdentity, req types.PullRequest) (types.PullResult, error) {
	entities := req.Entities
	if len(entities) == 0 {
		entities = r.order
	}
	if err := r.ValidateEntities(entities); err != nil {
		return types.PullResult{}, err
	}

	result := types.PullResult{
		Changes: types.ChangeSet{
			Created: make(map[string][]json.RawMessage),
			Updated: make(map[string][]json.RawMessage),
			Deleted: make(map[string][]json.RawMessage),
		},
		SyncedAt: time.Now().UTC(),
	}

	for _, name := range entities {
		records, err := r.sources[name].ChangesSince(ctx, viewer, req.LastSyncAt)
		if err != nil {
			r.log.Error("pull changes", "entity", name, "user_id", viewer.ID, "error", err)
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[name] = "failed to load changes"
			continue
		}

		created := result.Changes.Created[name]
		updated := result.Changes.Updated[name]
		deleted := result.Changes.Deleted[name]
		for _, rec := range records {
			switch {
			case rec.DeletedAt != nil:
				// A full resync never reports deletions; sources omit
				// deleted rows when the checkpoint is nil.
				deleted = append(deleted, rec.Payload)
			case req.LastSyncAt == nil || rec.CreatedAt.After(*req.LastSyncAt):
				created = append(created, rec.Payload)
			default:
				updated = append(updated, rec.Payload)
			}
		}
		result.Changes.Created[name] = created
		result.Changes.Updated[name] = updated
		result.Changes.Deleted[name] = deleted
	}

	return result, nil
}

// Status aggregates the user's sync queue.
func (r *Reconciler) Status(ctx context.Context, userID int) (types.SyncStatus, error) {
	return r.queue.Status(ctx, userID)
}

// SyncQueue records server-side mutations as queued changes and notifies the
// worker over the bus. Queueing is fire-and-forget: a mutation never fails
// because its change notification could not be recorded.
type SyncQueue struct {
	store SyncQueueStore
	bus   *mq.Bus
	log   *slog.Logger
}

func NewSyncQueue(store SyncQueueStore, bus *mq.Bus, log *slog.Logger) *SyncQueue {
	return &SyncQueue{store: store, bus: bus, log: log}
}

// QueueChange enqueues a snapshot of a mutated record.
func (q *SyncQueue) QueueChange(ctx context.Context, userID int, entity string, record any) {
	payload, err := json.Marshal(record)
	if err != nil {
		q.log.Error("marshal sync payload", "entity", entity, "error", err)
		return
	}

	item, err := q.store.Enqueue(ctx, types.SyncQueueItem{
		UserID:  userID,
		Entity:  entity,
		Payload: payload,
	})
	if err != nil {
		q.log.Error("enqueue sync item", "entity", entity, "user_id", userID, "error", err)
		return
	}

	if q.bus == nil {
		return
	}
	data, err := json.Marshal(map[string]int{"id": item.ID})
	if err != nil {
		q.log.Error("marshal sync event", "item_id", item.ID, "error", err)
		return
	}
	if _, err := q.bus.Publish(ctx, mq.ChannelSyncEvents, data, map[string]string{"entity": entity}); err != nil {
		q.log.Warn("publish sync event", "item_id", item.ID, "error", err)
	}
}
