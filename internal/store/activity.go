package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// ActivityRepository handles the append-only activity log.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append writes one immutable entry. There is no update or delete path.
func (r *ActivityRepository) Append(ctx context.Context, entry types.ActivityLogEntry) (types.ActivityLogEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO activity_log (user_id, action, details, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.UserID,
		entry.Action,
		entry.Details,
		entry.IP,
		entry.UserAgent,
		entry.CreatedAt,
	).Scan(&entry.ID); err != nil {
		return types.ActivityLogEntry{}, err
	}
	return entry, nil
}

// List returns entries newest first. A zero userID lists across all users.
func (r *ActivityRepository) List(ctx context.Context, userID, offset, limit int) ([]types.ActivityLogEntry, error) {
	const query = `
		SELECT id, user_id, action, details, ip, user_agent, created_at
		FROM activity_log
		WHERE ($1 = 0 OR user_id = $1)
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.ActivityLogEntry
	for rows.Next() {
		var entry types.ActivityLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.Details,
			&entry.IP,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
