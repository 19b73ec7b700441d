package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/siteops-app/apiserver/internal/mq"
	"github.com/siteops-app/apiserver/types"
)

const (
	workerBatchSize    = 100
	workerPollInterval = 30 * time.Second
	housekeepInterval  = time.Hour
)

// ExpiredPurger deletes rows whose lifetime ended before the cutoff.
// Refresh token and web session repositories both satisfy it.
type ExpiredPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SyncWorker drains the sync queue and runs credential housekeeping.
// Bus notifications wake it immediately after a mutation; the poll ticker
// catches items whose notification was lost.
type SyncWorker struct {
	queue    SyncQueueStore
	bus      *mq.Bus
	entities map[string]struct{}
	purgers  []ExpiredPurger
	log      *slog.Logger
}

func NewSyncWorker(queue SyncQueueStore, bus *mq.Bus, entities []string, log *slog.Logger, purgers ...ExpiredPurger) *SyncWorker {
	known := make(map[string]struct{}, len(entities))
	for _, name := range entities {
		known[name] = struct{}{}
	}
	return &SyncWorker{
		queue:    queue,
		bus:      bus,
		entities: known,
		purgers:  purgers,
		log:      log,
	}
}

// Run blocks until ctx is cancelled. It subscribes to sync events when a
// bus is configured and polls regardless, so the queue drains even with no
// broker deployed.
func (w *SyncWorker) Run(ctx context.Context) {
	if w.bus != nil {
		go func() {
			err := w.bus.Subscribe(ctx, mq.ChannelSyncEvents, func(ctx context.Context, msg mq.Message) error {
				w.drain(ctx)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				w.log.Error("subscribe sync events", "error", err)
			}
		}()
	}

	poll := time.NewTicker(workerPollInterval)
	defer poll.Stop()
	housekeep := time.NewTicker(housekeepInterval)
	defer housekeep.Stop()

	w.drain(ctx)
	w.housekeep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			w.drain(ctx)
		case <-housekeep.C:
			w.housekeep(ctx)
		}
	}
}

// drain processes pending items oldest first until the queue is empty or
// ctx is cancelled.
func (w *SyncWorker) drain(ctx context.Context) {
	for {
		items, err := w.queue.ListPending(ctx, workerBatchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error("list pending sync items", "error", err)
			}
			return
		}
		if len(items) == 0 {
			return
		}
		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			w.process(ctx, item)
		}
		if len(items) < workerBatchSize {
			return
		}
	}
}

// process settles one item. A payload that cannot be parsed, or an entity
// the reconciler does not serve, fails permanently; retrying it would fail
// the same way forever.
func (w *SyncWorker) process(ctx context.Context, item types.SyncQueueItem) {
	status := types.SyncCompleted
	if _, ok := w.entities[item.Entity]; !ok || !json.Valid(item.Payload) {
		status = types.SyncFailed
		w.log.Warn("sync item rejected", "item_id", item.ID, "entity", item.Entity)
	}
	if err := w.queue.SetStatus(ctx, item.ID, status, time.Now().UTC()); err != nil {
		w.log.Error("set sync item status", "item_id", item.ID, "status", status, "error", err)
	}
}

// housekeep purges expired refresh tokens and web sessions. Expired rows
// are already rejected on read, so this only reclaims space.
func (w *SyncWorker) housekeep(ctx context.Context) {
	now := time.Now().UTC()
	for _, purger := range w.purgers {
		deleted, err := purger.DeleteExpired(ctx, now)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error("purge expired rows", "error", err)
			}
			continue
		}
		if deleted > 0 {
			w.log.Info("purged expired rows", "count", deleted)
		}
	}
}
