package db

import (
	"context"
	"fmt"

	"github.com/ldi/cadence/internal/graph"
	"github.com/ldi/cadence/pkg/models"
)

// ErrCyclicDependency is returned when a proposed predecessor set would
// close a cycle. It is a validation error: nothing is written.
type ErrCyclicDependency struct {
	TaskID string
}

func (e *ErrCyclicDependency) Error() string {
	return fmt.Sprintf("cyclic dependency: task %s would become its own transitive predecessor", e.TaskID)
}

// CreateDependency inserts a single predecessor -> successor edge after
// checking that it does not close a cycle.
func (db *DB) CreateDependency(ctx context.Context, predecessorID, successorID string) error {
	if err := db.checkCycle(ctx, successorID, []string{predecessorID}); err != nil {
		return err
	}

	query := `INSERT INTO dependencies (predecessor_id, successor_id) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, predecessorID, successorID); err != nil {
		return fmt.Errorf("failed to create dependency: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteDependency removes a single edge.
func (db *DB) DeleteDependency(ctx context.Context, predecessorID, successorID string) error {
	query := `DELETE FROM dependencies WHERE predecessor_id = ? AND successor_id = ?`
	res, err := db.ExecContext(ctx, query, predecessorID, successorID)
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("dependency not found: %s -> %s", predecessorID, successorID)
	}

	db.triggerChange(ctx)
	return nil
}

// ListDependencies returns the full edge set.
func (db *DB) ListDependencies(ctx context.Context) ([]models.Dependency, error) {
	rows, err := db.QueryContext(ctx, `SELECT predecessor_id, successor_id FROM dependencies`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var edges []models.Dependency
	for rows.Next() {
		var e models.Dependency
		if err := rows.Scan(&e.PredecessorID, &e.SuccessorID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return edges, nil
}

// GetPredecessors returns the tasks that must finish before the given task.
func (db *DB) GetPredecessors(ctx context.Context, taskID string) ([]*models.Task, error) {
	query := `
		SELECT t.id, t.title, t.description, t.type, t.priority, t.estimated_minutes, t.status,
		       t.deadline, t.scheduled_start, t.scheduled_end, t.travel_time_minutes,
		       t.created_at, t.updated_at, t.completed_at
		FROM tasks t
		JOIN dependencies d ON t.id = d.predecessor_id
		WHERE d.successor_id = ?
		ORDER BY t.priority DESC, t.created_at ASC
	`
	return db.queryTasks(ctx, query, taskID)
}

// GetSuccessors returns the tasks that wait on the given task.
func (db *DB) GetSuccessors(ctx context.Context, taskID string) ([]*models.Task, error) {
	query := `
		SELECT t.id, t.title, t.description, t.type, t.priority, t.estimated_minutes, t.status,
		       t.deadline, t.scheduled_start, t.scheduled_end, t.travel_time_minutes,
		       t.created_at, t.updated_at, t.completed_at
		FROM tasks t
		JOIN dependencies d ON t.id = d.successor_id
		WHERE d.predecessor_id = ?
		ORDER BY t.priority DESC, t.created_at ASC
	`
	return db.queryTasks(ctx, query, taskID)
}

// ReplacePredecessors swaps a task's predecessor set all-or-nothing: the
// cycle check runs first, then old edges are removed and new ones inserted
// inside a single transaction.
func (db *DB) ReplacePredecessors(ctx context.Context, taskID string, predecessorIDs []string) error {
	if err := db.checkCycle(ctx, taskID, predecessorIDs); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE successor_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to clear predecessors: %w", err)
	}

	for _, predID := range predecessorIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO dependencies (predecessor_id, successor_id) VALUES (?, ?)`, predID, taskID)
		if err != nil {
			return fmt.Errorf("failed to insert predecessor %s: %w", predID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit predecessor replacement: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// checkCycle loads the edge set and rejects predecessor sets that would
// close a cycle. When the edge set cannot be read, db.CyclePolicy decides:
// fail open lets the edit through, fail closed surfaces the read error.
func (db *DB) checkCycle(ctx context.Context, taskID string, predecessorIDs []string) error {
	if len(predecessorIDs) == 0 {
		return nil
	}

	edges, err := db.ListDependencies(ctx)
	if err != nil {
		if db.CyclePolicy == CycleFailClosed {
			return fmt.Errorf("failed to verify dependency edges: %w", err)
		}
		return nil
	}

	if graph.WouldCreateCycle(taskID, predecessorIDs, edges) {
		return &ErrCyclicDependency{TaskID: taskID}
	}

	return nil
}
