package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ldi/cadence/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func TestTaskCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 1. Create Task
	deadline := time.Date(2026, 4, 10, 17, 0, 0, 0, time.UTC)
	task := &models.Task{
		Title:            "Write report",
		Description:      "Quarterly report",
		Type:             models.TaskTypeFlexible,
		Priority:         5,
		EstimatedMinutes: 90,
		Deadline:         &deadline,
	}

	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if len(task.ID) != 36 {
		t.Errorf("Expected ID length 36, got %d (%s)", len(task.ID), task.ID)
	}

	// Verify ID contains dashes (standard UUID format)
	if !strings.Contains(task.ID, "-") {
		t.Errorf("Expected ID to contain dashes, got %s", task.ID)
	}

	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Errorf("Expected CreatedAt and UpdatedAt to be set")
	}
	if task.Status != models.TaskStatusTodo {
		t.Errorf("Expected default status TODO, got %s", task.Status)
	}

	// 2. Get Task
	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched == nil {
		t.Fatalf("Task not found")
	}
	if fetched.Title != task.Title {
		t.Errorf("Expected title %s, got %s", task.Title, fetched.Title)
	}
	if fetched.Deadline == nil || !fetched.Deadline.Equal(deadline) {
		t.Errorf("Expected deadline %s, got %v", deadline, fetched.Deadline)
	}

	// 3. Update Task
	task.Title = "Write annual report"
	task.EstimatedMinutes = 120
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}

	fetched, err = db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched.Title != "Write annual report" {
		t.Errorf("Expected title Write annual report, got %s", fetched.Title)
	}
	if fetched.EstimatedMinutes != 120 {
		t.Errorf("Expected estimated minutes 120, got %d", fetched.EstimatedMinutes)
	}

	// 4. Update Status
	if err := db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusInProgress); err != nil {
		t.Fatalf("Failed to update status to IN_PROGRESS: %v", err)
	}

	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched.Status != models.TaskStatusInProgress {
		t.Errorf("Expected status IN_PROGRESS, got %s", fetched.Status)
	}

	if err := db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusDone); err != nil {
		t.Fatalf("Failed to update status to DONE: %v", err)
	}

	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched.Status != models.TaskStatusDone {
		t.Errorf("Expected status DONE, got %s", fetched.Status)
	}
	if fetched.CompletedAt == nil {
		t.Errorf("Expected CompletedAt to be set")
	}

	// 5. Invalid Status Transition
	err = db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusPostponed)
	if err == nil {
		t.Errorf("Expected error for invalid transition from DONE to POSTPONED")
	}

	// 6. List Tasks
	tasks, err := db.ListTasks(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}

	status := models.TaskStatusDone
	tasks, err = db.ListTasks(ctx, &status, nil)
	if err != nil {
		t.Fatalf("Failed to list tasks with filter: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task with filter, got %d", len(tasks))
	}

	typ := models.TaskTypeFixed
	tasks, err = db.ListTasks(ctx, nil, &typ)
	if err != nil {
		t.Fatalf("Failed to list tasks with type filter: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected 0 fixed tasks, got %d", len(tasks))
	}

	// 7. Delete Task
	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	fetched, err = db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task after deletion: %v", err)
	}
	if fetched != nil {
		t.Errorf("Expected task to be deleted, but it still exists")
	}
}

func TestCreateTaskDefaults(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "Minimal", EstimatedMinutes: 15}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if task.Type != models.TaskTypeFlexible {
		t.Errorf("Expected default type FLEXIBLE, got %s", task.Type)
	}
	if task.Priority != 3 {
		t.Errorf("Expected default priority 3, got %d", task.Priority)
	}
	if task.Status != models.TaskStatusTodo {
		t.Errorf("Expected default status TODO, got %s", task.Status)
	}
}

func TestCreateTaskRejectsBadValues(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Priority outside 1-5 violates the schema check.
	bad := &models.Task{Title: "Bad", Priority: 9, EstimatedMinutes: 30}
	if err := db.CreateTask(ctx, bad); err == nil {
		t.Errorf("Expected error for priority 9")
	}

	// Zero estimated minutes resolves to a violation too; the column
	// requires a positive duration.
	bad = &models.Task{Title: "Bad", Priority: 3}
	if err := db.CreateTask(ctx, bad); err == nil {
		t.Errorf("Expected error for estimated_minutes 0")
	}
}

func TestListActiveTasks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 1. Create three tasks, complete one
	a := &models.Task{Title: "A", EstimatedMinutes: 30}
	b := &models.Task{Title: "B", EstimatedMinutes: 30}
	c := &models.Task{Title: "C", EstimatedMinutes: 30}
	for _, task := range []*models.Task{a, b, c} {
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}
	if err := db.UpdateTaskStatus(ctx, c.ID, models.TaskStatusDone); err != nil {
		t.Fatalf("Failed to complete task: %v", err)
	}

	// 2. Add an edge a -> b
	if err := db.CreateDependency(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("Failed to create dependency: %v", err)
	}

	// 3. Active set excludes the DONE task and carries predecessors
	active, err := db.ListActiveTasks(ctx)
	if err != nil {
		t.Fatalf("Failed to list active tasks: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active tasks, got %d", len(active))
	}

	for _, task := range active {
		switch task.ID {
		case a.ID:
			if len(task.Predecessors) != 0 {
				t.Errorf("Expected no predecessors for A, got %v", task.Predecessors)
			}
		case b.ID:
			if len(task.Predecessors) != 1 || task.Predecessors[0] != a.ID {
				t.Errorf("Expected predecessor [%s] for B, got %v", a.ID, task.Predecessors)
			}
		default:
			t.Errorf("Unexpected task in active set: %s", task.Title)
		}
	}
}

func TestApplySchedule(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 1. One task previously postponed, one fresh
	revived := &models.Task{Title: "Revived", EstimatedMinutes: 30}
	dropped := &models.Task{Title: "Dropped", EstimatedMinutes: 30}
	for _, task := range []*models.Task{revived, dropped} {
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}
	if err := db.UpdateTaskStatus(ctx, revived.ID, models.TaskStatusPostponed); err != nil {
		t.Fatalf("Failed to postpone task: %v", err)
	}

	// 2. Apply a run where the postponed task found a slot and the other lost its
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	scheduledCopy := *revived
	scheduledCopy.Status = models.TaskStatusPostponed
	scheduledCopy.ScheduledStart = &start
	scheduledCopy.ScheduledEnd = &end

	err := db.ApplySchedule(ctx, []*models.Task{&scheduledCopy}, []*models.Task{dropped})
	if err != nil {
		t.Fatalf("Failed to apply schedule: %v", err)
	}

	// 3. The revived task is TODO again with its window set
	fetched, _ := db.GetTask(ctx, revived.ID)
	if fetched.Status != models.TaskStatusTodo {
		t.Errorf("Expected status TODO after rescheduling, got %s", fetched.Status)
	}
	if fetched.ScheduledStart == nil || !fetched.ScheduledStart.Equal(start) {
		t.Errorf("Expected scheduled start %s, got %v", start, fetched.ScheduledStart)
	}

	// 4. The dropped task is POSTPONED with timing cleared
	fetched, _ = db.GetTask(ctx, dropped.ID)
	if fetched.Status != models.TaskStatusPostponed {
		t.Errorf("Expected status POSTPONED, got %s", fetched.Status)
	}
	if fetched.ScheduledStart != nil || fetched.ScheduledEnd != nil {
		t.Errorf("Expected timing cleared on postponed task")
	}
}

func TestDeleteTaskCascadesEdges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := &models.Task{Title: "A", EstimatedMinutes: 30}
	b := &models.Task{Title: "B", EstimatedMinutes: 30}
	for _, task := range []*models.Task{a, b} {
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}
	if err := db.CreateDependency(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("Failed to create dependency: %v", err)
	}

	if err := db.DeleteTask(ctx, a.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	edges, err := db.ListDependencies(ctx)
	if err != nil {
		t.Fatalf("Failed to list dependencies: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("Expected edges removed with the task, got %d", len(edges))
	}
}
