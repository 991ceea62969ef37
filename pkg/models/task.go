package models

import "time"

type TaskType string

const (
	TaskTypeFixed    TaskType = "FIXED"
	TaskTypeFlexible TaskType = "FLEXIBLE"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusPostponed  TaskStatus = "POSTPONED"
)

type Task struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Type              TaskType   `json:"type"`
	Priority          int        `json:"priority"`
	EstimatedMinutes  int        `json:"estimated_minutes"`
	Status            TaskStatus `json:"status"`
	Deadline          *time.Time `json:"deadline"`
	ScheduledStart    *time.Time `json:"scheduled_start"`
	ScheduledEnd      *time.Time `json:"scheduled_end"`
	TravelTimeMinutes int        `json:"travel_time_minutes"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at"`

	// Predecessors is a helper field populated from the dependencies table.
	// Edges themselves are managed through the dependency store.
	Predecessors []string `json:"predecessors,omitempty"`
}
