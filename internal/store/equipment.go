package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// EquipmentRepository handles persistence for fleet items.
type EquipmentRepository struct {
	db *sql.DB
}

func NewEquipmentRepository(db *sql.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

const equipmentColumns = `id, name, kind, status, project_id, created_at, updated_at, deleted_at`

func scanEquipment(scanner interface{ Scan(...any) error }) (types.Equipment, error) {
	var e types.Equipment
	err := scanner.Scan(
		&e.ID,
		&e.Name,
		&e.Kind,
		&e.Status,
		&e.ProjectID,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Equipment{}, ErrNotFound
		}
		return types.Equipment{}, err
	}
	return e, nil
}

func (r *EquipmentRepository) Get(ctx context.Context, id int) (types.Equipment, error) {
	const query = `
		SELECT ` + equipmentColumns + `
		FROM equipment
		WHERE id = $1 AND deleted_at IS NULL`
	return scanEquipment(r.db.QueryRowContext(ctx, query, id))
}

// List returns live fleet items, name order.
func (r *EquipmentRepository) List(ctx context.Context, offset, limit int) ([]types.Equipment, int, error) {
	const query = `
		SELECT ` + equipmentColumns + `, COUNT(*) OVER ()
		FROM equipment
		WHERE deleted_at IS NULL
		ORDER BY name, id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		items []types.Equipment
		total int
	)
	for rows.Next() {
		var e types.Equipment
		if err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.Kind,
			&e.Status,
			&e.ProjectID,
			&e.CreatedAt,
			&e.UpdatedAt,
			&e.DeletedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *EquipmentRepository) Create(ctx context.Context, e types.Equipment) (types.Equipment, error) {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	const query = `
		INSERT INTO equipment (name, kind, status, project_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		e.Name,
		e.Kind,
		e.Status,
		e.ProjectID,
		e.CreatedAt,
		e.UpdatedAt,
	).Scan(&e.ID); err != nil {
		return types.Equipment{}, err
	}
	return e, nil
}

func (r *EquipmentRepository) Update(ctx context.Context, e types.Equipment) (types.Equipment, error) {
	e.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE equipment
		SET name = $1, kind = $2, status = $3, project_id = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, e.Name, e.Kind, e.Status, e.ProjectID, e.UpdatedAt, e.ID)
	if err != nil {
		return types.Equipment{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Equipment{}, err
	}
	if affected == 0 {
		return types.Equipment{}, ErrNotFound
	}
	return e, nil
}

func (r *EquipmentRepository) SoftDelete(ctx context.Context, id int) error {
	now := time.Now().UTC()
	const query = `
		UPDATE equipment
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

// ChangesSince returns fleet items visible to the viewer changed after the
// checkpoint. Non-privileged viewers only see equipment allocated to their
// projects.
func (r *EquipmentRepository) ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Equipment, error) {
	query := `
		SELECT ` + equipmentColumns + `
		FROM equipment
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

	var items []types.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
