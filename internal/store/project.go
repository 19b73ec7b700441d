package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// ProjectRepository handles persistence for projects and their membership.
type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, address, status, manager_id, created_at, updated_at, deleted_at`

func scanProject(scanner interface{ Scan(...any) error }) (types.Project, error) {
	var p types.Project
	err := scanner.Scan(
		&p.ID,
		&p.Name,
		&p.Address,
		&p.Status,
		&p.ManagerID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Project{}, ErrNotFound
		}
		return types.Project{}, err
	}
	return p, nil
}

func (r *ProjectRepository) Get(ctx context.Context, id int) (types.Project, error) {
	const query = `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = $1 AND deleted_at IS NULL`
	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

// List returns live projects visible to the viewer, newest first.
// Privileged roles see every project; others see projects they manage or
// belong to.
func (r *ProjectRepository) List(ctx context.Context, viewer types.SessionIdentity, offset, limit int) ([]types.Project, int, error) {
	query := `
		SELECT ` + projectColumns + `, COUNT(*) OVER ()
		FROM projects
		WHERE deleted_at IS NULL`
	args := []any{}
	if !types.SeesEverything(viewer.Role) {
		args = append(args, viewer.ID)
		query += ` AND id IN (` + visibleProjectIDs(len(args)) + `)`
	}
	query += ` ORDER BY created_at DESC, id DESC OFFSET $` + itoa(len(args)+1) + ` LIMIT $` + itoa(len(args)+2)
	args = append(args, offset, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		projects []types.Project
		total    int
	)
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Address,
			&p.Status,
			&p.ManagerID,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.DeletedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}
	return projects, total, rows.Err()
}

func (r *ProjectRepository) Create(ctx context.Context, p types.Project) (types.Project, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	const query = `
		INSERT INTO projects (name, address, status, manager_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		p.Name,
		p.Address,
		p.Status,
		p.ManagerID,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&p.ID); err != nil {
		return types.Project{}, err
	}
	return p, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p types.Project) (types.Project, error) {
	p.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE projects
		SET name = $1, address = $2, status = $3, manager_id = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, p.Name, p.Address, p.Status, p.ManagerID, p.UpdatedAt, p.ID)
	if err != nil {
		return types.Project{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Project{}, err
	}
	if affected == 0 {
		return types.Project{}, ErrNotFound
	}
	return p, nil
}

// SoftDelete stamps deleted_at so the removal propagates through sync.
func (r *ProjectRepository) SoftDelete(ctx context.Context, id int) error {
	now := time.Now().UTC()
	const query = `
		UPDATE projects
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

// AddMember attaches a user to a project. Re-adding is a no-op.
func (r *ProjectRepository) AddMember(ctx context.Context, projectID, userID int) error {
	const query = `
		INSERT INTO project_members (project_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, projectID, userID)
	return err
}

// RemoveMember detaches a user from a project.
func (r *ProjectRepository) RemoveMember(ctx context.Context, projectID, userID int) error {
	const query = `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, projectID, userID)
	return err
}

// ChangesSince returns projects visible to the viewer that changed after
// the checkpoint, ascending by update timestamp. A nil checkpoint returns
// every live visible project (full resync).
func (r *ProjectRepository) ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
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
		query += ` AND id IN (` + visibleProjectIDs(len(args)) + `)`
	}
	query += ` ORDER BY updated_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
