package models

import "time"

type ExclusionType string

const (
	ExclusionSleep  ExclusionType = "SLEEP"
	ExclusionMeal   ExclusionType = "MEAL"
	ExclusionTravel ExclusionType = "TRAVEL"
	ExclusionOther  ExclusionType = "OTHER"
)

// ExclusionRule is a recurring daily window that is never available for
// scheduling. StartTime/EndTime are wall-clock "HH:MM:SS" strings with no
// date; a rule with start > end wraps past midnight (e.g. 22:00:00-06:00:00).
type ExclusionRule struct {
	ID        string        `json:"id"`
	Type      ExclusionType `json:"type"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
}
