package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/cadence/pkg/models"
)

const taskColumns = `id, title, description, type, priority, estimated_minutes, status,
	       deadline, scheduled_start, scheduled_end, travel_time_minutes,
	       created_at, updated_at, completed_at`

// CreateTask inserts a new task into the database.
// If t.ID is empty, a new UUID is generated.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Type == "" {
		t.Type = models.TaskTypeFlexible
	}
	if t.Status == "" {
		t.Status = models.TaskStatusTodo
	}
	if t.Priority == 0 {
		t.Priority = 3
	}

	query := `
		INSERT INTO tasks (id, title, description, type, priority, estimated_minutes, status,
		                   deadline, scheduled_start, scheduled_end, travel_time_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := db.QueryRowContext(ctx, query,
		t.ID, t.Title, t.Description, t.Type, t.Priority, t.EstimatedMinutes, t.Status,
		t.Deadline, t.ScheduledStart, t.ScheduledEnd, t.TravelTimeMinutes,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// GetTask retrieves a task by its ID.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t := &models.Task{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Title, &t.Description, &t.Type, &t.Priority, &t.EstimatedMinutes, &t.Status,
		&t.Deadline, &t.ScheduledStart, &t.ScheduledEnd, &t.TravelTimeMinutes,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks, optionally filtered by status or type.
func (db *DB) ListTasks(ctx context.Context, status *models.TaskStatus, typ *models.TaskType) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []interface{}{}

	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}

	if typ != nil {
		query += " AND type = ?"
		args = append(args, *typ)
	}

	query += " ORDER BY priority DESC, created_at ASC"

	return db.queryTasks(ctx, query, args...)
}

// ListActiveTasks returns every task that is not DONE, with the
// Predecessors helper field populated from the dependencies table. This is
// the task snapshot a scheduling run consumes.
func (db *DB) ListActiveTasks(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status != 'DONE' ORDER BY priority DESC, created_at ASC`
	tasks, err := db.queryTasks(ctx, query)
	if err != nil {
		return nil, err
	}

	edges, err := db.ListDependencies(ctx)
	if err != nil {
		return nil, err
	}

	preds := make(map[string][]string)
	for _, e := range edges {
		preds[e.SuccessorID] = append(preds[e.SuccessorID], e.PredecessorID)
	}
	for _, t := range tasks {
		t.Predecessors = preds[t.ID]
	}

	return tasks, nil
}

// queryTasks is a helper to execute a query that returns a list of tasks.
func (db *DB) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*models.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.Type, &t.Priority, &t.EstimatedMinutes, &t.Status,
			&t.Deadline, &t.ScheduledStart, &t.ScheduledEnd, &t.TravelTimeMinutes,
			&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates an existing task's editable fields.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	query := `
		UPDATE tasks
		SET title = ?, description = ?, type = ?, priority = ?, estimated_minutes = ?,
		    deadline = ?, scheduled_start = ?, scheduled_end = ?, travel_time_minutes = ?
		WHERE id = ?
		RETURNING updated_at
	`
	err := db.QueryRowContext(ctx, query,
		t.Title, t.Description, t.Type, t.Priority, t.EstimatedMinutes,
		t.Deadline, t.ScheduledStart, t.ScheduledEnd, t.TravelTimeMinutes, t.ID,
	).Scan(&t.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// UpdateTaskStatus updates the status of a task.
func (db *DB) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	current, err := db.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("task not found: %s", id)
	}

	if err := validateStatusTransition(current.Status, status); err != nil {
		return err
	}

	query := `UPDATE tasks SET status = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteTask deletes a task by its ID. Dependency edges touching the task
// are removed by the cascading foreign keys.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	query := `DELETE FROM tasks WHERE id = ?`
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("task not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}

// ApplySchedule persists the output of a scheduling run in one transaction.
// Scheduled tasks receive their new window; a previously postponed task that
// found a slot goes back to TODO. Postponed tasks are flagged POSTPONED with
// their timing cleared.
func (db *DB) ApplySchedule(ctx context.Context, scheduled, postponed []*models.Task) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range scheduled {
		status := t.Status
		if status == models.TaskStatusPostponed {
			status = models.TaskStatusTodo
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET scheduled_start = ?, scheduled_end = ?, status = ? WHERE id = ?`,
			t.ScheduledStart, t.ScheduledEnd, status, t.ID)
		if err != nil {
			return fmt.Errorf("failed to persist scheduled task %s: %w", t.ID, err)
		}
	}

	for _, t := range postponed {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET scheduled_start = NULL, scheduled_end = NULL, status = 'POSTPONED' WHERE id = ?`,
			t.ID)
		if err != nil {
			return fmt.Errorf("failed to persist postponed task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func validateStatusTransition(from, to models.TaskStatus) error {
	if from == to {
		return nil
	}

	switch from {
	case models.TaskStatusTodo:
		if to != models.TaskStatusInProgress && to != models.TaskStatusDone && to != models.TaskStatusPostponed {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	case models.TaskStatusInProgress:
		if to != models.TaskStatusDone && to != models.TaskStatusTodo && to != models.TaskStatusPostponed {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	case models.TaskStatusPostponed:
		if to != models.TaskStatusTodo && to != models.TaskStatusInProgress && to != models.TaskStatusDone {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	case models.TaskStatusDone:
		// Reopening a completed task is allowed.
		if to != models.TaskStatusTodo {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	}

	return nil
}
