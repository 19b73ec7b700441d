package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// TaskRepository handles persistence for tasks.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, project_id, title, status, assignee_id, due_date, created_at, updated_at, deleted_at`

func scanTask(scanner interface{ Scan(...any) error }) (types.Task, error) {
	var t types.Task
	err := scanner.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Status,
		&t.AssigneeID,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return t, nil
}

func (r *TaskRepository) Get(ctx context.Context, id int) (types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND deleted_at IS NULL`
	return scanTask(r.db.QueryRowContext(ctx, query, id))
}

// ListByProject returns live tasks of one project, oldest first.
func (r *TaskRepository) ListByProject(ctx context.Context, projectID, offset, limit int) ([]types.Task, int, error) {
	const query = `
		SELECT ` + taskColumns + `, COUNT(*) OVER ()
		FROM tasks
		WHERE project_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, projectID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		tasks []types.Task
		total int
	)
	for rows.Next() {
		var t types.Task
		if err := rows.Scan(
			&t.ID,
			&t.ProjectID,
			&t.Title,
			&t.Status,
			&t.AssigneeID,
			&t.DueDate,
			&t.CreatedAt,
			&t.UpdatedAt,
			&t.DeletedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

func (r *TaskRepository) Create(ctx context.Context, t types.Task) (types.Task, error) {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	const query = `
		INSERT INTO tasks (project_id, title, status, assignee_id, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		t.ProjectID,
		t.Title,
		t.Status,
		t.AssigneeID,
		t.DueDate,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&t.ID); err != nil {
		return types.Task{}, err
	}
	return t, nil
}

func (r *TaskRepository) Update(ctx context.Context, t types.Task) (types.Task, error) {
	t.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE tasks
		SET title = $1, status = $2, assignee_id = $3, due_date = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, t.Title, t.Status, t.AssigneeID, t.DueDate, t.UpdatedAt, t.ID)
	if err != nil {
		return types.Task{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Task{}, err
	}
	if affected == 0 {
		return types.Task{}, ErrNotFound
	}
	return t, nil
}

func (r *TaskRepository) SoftDelete(ctx context.Context, id int) error {
	now := time.Now().UTC()
	const query = `
		UPDATE tasks
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

// ChangesSince returns tasks visible to the viewer changed after the
// checkpoint. Non-privileged viewers see tasks assigned to them plus tasks
// of their projects.
func (r *TaskRepository) ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
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
		param := itoa(len(args))
		query += ` AND (assignee_id = $` + param + ` OR project_id IN (` + visibleProjectIDs(len(args)) + `))`
	}
	query += ` ORDER BY updated_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
