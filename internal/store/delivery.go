package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// DeliveryRepository handles persistence for deliveries.
type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, project_id, supplier, material, status, photo_key, created_at, updated_at, deleted_at`

func scanDelivery(scanner interface{ Scan(...any) error }) (types.Delivery, error) {
	var d types.Delivery
	err := scanner.Scan(
		&d.ID,
		&d.ProjectID,
		&d.Supplier,
		&d.Material,
		&d.Status,
		&d.PhotoKey,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Delivery{}, ErrNotFound
		}
		return types.Delivery{}, err
	}
	return d, nil
}

func (r *DeliveryRepository) Get(ctx context.Context, id int) (types.Delivery, error) {
	const query = `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE id = $1 AND deleted_at IS NULL`
	return scanDelivery(r.db.QueryRowContext(ctx, query, id))
}

// ListByProject returns live deliveries of one project, newest first.
func (r *DeliveryRepository) ListByProject(ctx context.Context, projectID, offset, limit int) ([]types.Delivery, int, error) {
	const query = `
		SELECT ` + deliveryColumns + `, COUNT(*) OVER ()
		FROM deliveries
		WHERE project_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, projectID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		deliveries []types.Delivery
		total      int
	)
	for rows.Next() {
		var d types.Delivery
		if err := rows.Scan(
			&d.ID,
			&d.ProjectID,
			&d.Supplier,
			&d.Material,
			&d.Status,
			&d.PhotoKey,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.DeletedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, total, rows.Err()
}

func (r *DeliveryRepository) Create(ctx context.Context, d types.Delivery) (types.Delivery, error) {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	const query = `
		INSERT INTO deliveries (project_id, supplier, material, status, photo_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		d.ProjectID,
		d.Supplier,
		d.Material,
		d.Status,
		d.PhotoKey,
		d.CreatedAt,
		d.UpdatedAt,
	).Scan(&d.ID); err != nil {
		return types.Delivery{}, err
	}
	return d, nil
}

func (r *DeliveryRepository) Update(ctx context.Context, d types.Delivery) (types.Delivery, error) {
	d.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE deliveries
		SET supplier = $1, material = $2, status = $3, photo_key = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, d.Supplier, d.Material, d.Status, d.PhotoKey, d.UpdatedAt, d.ID)
	if err != nil {
		return types.Delivery{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Delivery{}, err
	}
	if affected == 0 {
		return types.Delivery{}, ErrNotFound
	}
	return d, nil
}

func (r *DeliveryRepository) SoftDelete(ctx context.Context, id int) error {
	now := time.Now().UTC()
	const query = `
		UPDATE deliveries
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, now, id)
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

// ChangesSince returns deliveries visible to the viewer changed after the
// checkpoint.
func (r *DeliveryRepository) ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE `
	args := []any{}
	if since == nil {
		query += `deleted_at IS NULL`
	} else {
		query += `(updated_at > $1 OR deleted_at > $1)`
		args = append(args, *since)
	}
	if !types.SeesEverything(viewer.Role) {
		args = append(args, viewer.ID)
		query += ` AND project_id IN (` + visibleProjectIDs(len(args)) + `)`
	}
	query += ` ORDER BY updated_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []types.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
