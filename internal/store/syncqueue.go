package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// SyncQueueRepository handles persistence for queued sync items.
type SyncQueueRepository struct {
	db *sql.DB
}

func NewSyncQueueRepository(db *sql.DB) *SyncQueueRepository {
	return &SyncQueueRepository{db: db}
}

func (r *SyncQueueRepository) Enqueue(ctx context.Context, item types.SyncQueueItem) (types.SyncQueueItem, error) {
	if item.Status == "" {
		item.Status = types.SyncPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO sync_queue (user_id, entity, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		item.UserID,
		item.Entity,
		item.Payload,
		item.Status,
		item.CreatedAt,
	).Scan(&item.ID); err != nil {
		return types.SyncQueueItem{}, err
	}
	return item, nil
}

// ListPending returns the oldest pending items, bounded by limit.
func (r *SyncQueueRepository) ListPending(ctx context.Context, limit int) ([]types.SyncQueueItem, error) {
	const query = `
		SELECT id, user_id, entity, payload, status, synced_at, created_at
		FROM sync_queue
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, types.SyncPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.SyncQueueItem
	for rows.Next() {
		var item types.SyncQueueItem
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Entity,
			&item.Payload,
			&item.Status,
			&item.SyncedAt,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetStatus transitions an item to COMPLETED or FAILED and stamps synced_at.
func (r *SyncQueueRepository) SetStatus(ctx context.Context, id int, status string, at time.Time) error {
	const query = `
		UPDATE sync_queue
		SET status = $1, synced_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, at, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Status aggregates a user's queue in one grouped query; the endpoint built
// on it is polled frequently, so nothing heavier than a GROUP BY runs here.
func (r *SyncQueueRepository) Status(ctx context.Context, userID int) (types.SyncStatus, error) {
	const query = `
		SELECT status, COUNT(*), MAX(synced_at)
		FROM sync_queue
		WHERE user_id = $1
		GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return types.SyncStatus{}, err
	}
	defer rows.Close()

	var status types.SyncStatus
	for rows.Next() {
		var (
			state    string
			count    int
			syncedAt sql.NullTime
		)
		if err := rows.Scan(&state, &count, &syncedAt); err != nil {
			return types.SyncStatus{}, err
		}
		switch state {
		case types.SyncPending:
			status.PendingCount = count
		case types.SyncFailed:
			status.FailedCount = count
		}
		if syncedAt.Valid {
			if status.LastSyncAt == nil || syncedAt.Time.After(*status.LastSyncAt) {
				t := syncedAt.Time
				status.LastSyncAt = &t
			}
		}
	}
	if err := rows.Err(); err != nil {
		return types.SyncStatus{}, err
	}
	status.HasPendingChanges = status.PendingCount > 0
	return status, nil
}

// Get fetches a single item by id.
func (r *SyncQueueRepository) Get(ctx context.Context, id int) (types.SyncQueueItem, error) {
	const query = `
		SELECT id, user_id, entity, payload, status, synced_at, created_at
		FROM sync_queue
		WHERE id = $1`
	var item types.SyncQueueItem
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.UserID,
		&item.Entity,
		&item.Payload,
		&item.Status,
		&item.SyncedAt,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SyncQueueItem{}, ErrNotFound
		}
		return types.SyncQueueItem{}, err
	}
	return item, nil
}
