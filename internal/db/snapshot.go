package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ldi/cadence/pkg/models"
)

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation.
func (db *DB) EnableAutoSnapshot(path string) {
	db.SetOnChange(func(ctx context.Context) {
		// Hooks are best-effort; a failed export must not fail the
		// original write operation.
		_ = db.ExportSnapshot(ctx, path)
	})
}

type snapshotRecord struct {
	RecordType string `json:"record_type"`

	Task      *models.Task          `json:"task,omitempty"`
	Edge      *models.Dependency    `json:"edge,omitempty"`
	Exclusion *models.ExclusionRule `json:"exclusion,omitempty"`

	// Meta fields
	ExportedAt *time.Time `json:"exported_at,omitempty"`
}

// ExportSnapshot writes tasks, dependency edges and exclusion rules as JSONL
// to the given path, atomically via a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	tasks, err := db.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return err
	}

	edges, err := db.ListDependencies(ctx)
	if err != nil {
		return err
	}

	rules, err := db.ListExclusions(ctx, false)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(tempFile)

	now := time.Now().UTC()
	if err := enc.Encode(snapshotRecord{RecordType: "meta", ExportedAt: &now}); err != nil {
		return fmt.Errorf("failed to write meta record: %w", err)
	}

	for _, t := range tasks {
		if err := enc.Encode(snapshotRecord{RecordType: "task", Task: t}); err != nil {
			return fmt.Errorf("failed to write task record: %w", err)
		}
	}
	for i := range edges {
		if err := enc.Encode(snapshotRecord{RecordType: "edge", Edge: &edges[i]}); err != nil {
			return fmt.Errorf("failed to write edge record: %w", err)
		}
	}
	for i := range rules {
		if err := enc.Encode(snapshotRecord{RecordType: "exclusion", Exclusion: &rules[i]}); err != nil {
			return fmt.Errorf("failed to write exclusion record: %w", err)
		}
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ImportSnapshot reads a JSONL snapshot and populates the database inside a
// single transaction. Records are upserted by ID, so importing into a
// non-empty database reconciles rather than duplicates.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec snapshotRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot record: %w", err)
		}

		switch rec.RecordType {
		case "meta":
			// Skip meta
		case "task":
			t := rec.Task
			if t == nil {
				return fmt.Errorf("task record missing payload")
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO tasks (id, title, description, type, priority, estimated_minutes, status,
				                   deadline, scheduled_start, scheduled_end, travel_time_minutes,
				                   created_at, updated_at, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					title = excluded.title, description = excluded.description,
					type = excluded.type, priority = excluded.priority,
					estimated_minutes = excluded.estimated_minutes, status = excluded.status,
					deadline = excluded.deadline, scheduled_start = excluded.scheduled_start,
					scheduled_end = excluded.scheduled_end,
					travel_time_minutes = excluded.travel_time_minutes,
					completed_at = excluded.completed_at`,
				t.ID, t.Title, t.Description, t.Type, t.Priority, t.EstimatedMinutes, t.Status,
				t.Deadline, t.ScheduledStart, t.ScheduledEnd, t.TravelTimeMinutes,
				t.CreatedAt, t.UpdatedAt, t.CompletedAt)
			if err != nil {
				return fmt.Errorf("failed to sync task %s: %w", t.ID, err)
			}
		case "edge":
			e := rec.Edge
			if e == nil {
				return fmt.Errorf("edge record missing payload")
			}
			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO dependencies (predecessor_id, successor_id) VALUES (?, ?)`,
				e.PredecessorID, e.SuccessorID)
			if err != nil {
				return fmt.Errorf("failed to insert edge %s -> %s: %w", e.PredecessorID, e.SuccessorID, err)
			}
		case "exclusion":
			r := rec.Exclusion
			if r == nil {
				return fmt.Errorf("exclusion record missing payload")
			}
			active := 0
			if r.IsActive {
				active = 1
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO exclusions (id, type, start_time, end_time, is_active, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					type = excluded.type, start_time = excluded.start_time,
					end_time = excluded.end_time, is_active = excluded.is_active`,
				r.ID, r.Type, r.StartTime, r.EndTime, active, r.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to sync exclusion %s: %w", r.ID, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}
