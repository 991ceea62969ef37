package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/cadence/pkg/models"
)

// CreateExclusion inserts a new excluded-time rule.
func (db *DB) CreateExclusion(ctx context.Context, r *models.ExclusionRule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	active := 0
	if r.IsActive {
		active = 1
	}

	query := `
		INSERT INTO exclusions (id, type, start_time, end_time, is_active)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at
	`
	err := db.QueryRowContext(ctx, query, r.ID, r.Type, r.StartTime, r.EndTime, active).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create exclusion: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// GetExclusion retrieves a rule by its ID.
func (db *DB) GetExclusion(ctx context.Context, id string) (*models.ExclusionRule, error) {
	query := `SELECT id, type, start_time, end_time, is_active, created_at FROM exclusions WHERE id = ?`
	r := &models.ExclusionRule{}
	var active int
	err := db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Type, &r.StartTime, &r.EndTime, &active, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exclusion: %w", err)
	}

	r.IsActive = active == 1
	return r, nil
}

// ListExclusions returns all rules, or only active ones.
func (db *DB) ListExclusions(ctx context.Context, activeOnly bool) ([]models.ExclusionRule, error) {
	query := `SELECT id, type, start_time, end_time, is_active, created_at FROM exclusions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY start_time ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusions: %w", err)
	}
	defer rows.Close()

	var rules []models.ExclusionRule
	for rows.Next() {
		var r models.ExclusionRule
		var active int
		if err := rows.Scan(&r.ID, &r.Type, &r.StartTime, &r.EndTime, &active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		r.IsActive = active == 1
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rules, nil
}

// SetExclusionActive toggles a rule without deleting it.
func (db *DB) SetExclusionActive(ctx context.Context, id string, active bool) error {
	val := 0
	if active {
		val = 1
	}

	res, err := db.ExecContext(ctx, `UPDATE exclusions SET is_active = ? WHERE id = ?`, val, id)
	if err != nil {
		return fmt.Errorf("failed to update exclusion: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("exclusion not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteExclusion removes a rule by its ID.
func (db *DB) DeleteExclusion(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM exclusions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete exclusion: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("exclusion not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}
