package planner

import (
	"context"
	"testing"
	"time"

	"github.com/ldi/cadence/internal/db"
	"github.com/ldi/cadence/pkg/models"
)

func newTestPlanner(t *testing.T) (*Planner, *db.DB) {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}

	p := New(database, DefaultConfig())
	// Fixed clock: a Monday morning before the scheduling window opens.
	p.Now = func() time.Time {
		return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	}
	return p, database
}

func TestRunSchedulesAndPersists(t *testing.T) {
	p, database := newTestPlanner(t)
	ctx := context.Background()

	a := &models.Task{Title: "A", EstimatedMinutes: 60, Priority: 4}
	b := &models.Task{Title: "B", EstimatedMinutes: 30, Priority: 4}
	for _, task := range []*models.Task{a, b} {
		if err := database.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}
	if err := database.CreateDependency(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("Failed to create dependency: %v", err)
	}

	summary, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Scheduled != 2 || summary.Postponed != 0 {
		t.Fatalf("Expected 2 scheduled / 0 postponed, got %d / %d",
			summary.Scheduled, summary.Postponed)
	}

	// Timing persisted, ordering respected
	fa, _ := database.GetTask(ctx, a.ID)
	fb, _ := database.GetTask(ctx, b.ID)
	if fa.ScheduledStart == nil || fb.ScheduledStart == nil {
		t.Fatal("Expected both tasks to carry a scheduled window")
	}
	if fa.ScheduledEnd.After(*fb.ScheduledStart) {
		t.Errorf("Predecessor ends %s after successor starts %s",
			fa.ScheduledEnd, fb.ScheduledStart)
	}

	// First slot of the day is 08:00; A goes there, being the only ready task.
	if fa.ScheduledStart.Hour() != 8 || fa.ScheduledStart.Minute() != 0 {
		t.Errorf("Expected A at 08:00, got %s", fa.ScheduledStart.Format("15:04"))
	}
}

func TestRunRespectsExclusions(t *testing.T) {
	p, database := newTestPlanner(t)
	ctx := context.Background()

	// Block the whole morning; the first free slot is 12:00.
	rule := &models.ExclusionRule{
		Type:      models.ExclusionOther,
		StartTime: "08:00:00",
		EndTime:   "12:00:00",
		IsActive:  true,
	}
	if err := database.CreateExclusion(ctx, rule); err != nil {
		t.Fatalf("Failed to create exclusion: %v", err)
	}

	task := &models.Task{Title: "Late start", EstimatedMinutes: 30}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fetched, _ := database.GetTask(ctx, task.ID)
	if fetched.ScheduledStart == nil {
		t.Fatal("Expected the task to be scheduled")
	}
	if fetched.ScheduledStart.Hour() != 12 {
		t.Errorf("Expected start at 12:00 past the exclusion, got %s",
			fetched.ScheduledStart.Format("15:04"))
	}
}

func TestRunBlocksAroundFixedTask(t *testing.T) {
	p, database := newTestPlanner(t)
	ctx := context.Background()

	// A fixed appointment 09:00-10:00 with 15 minutes of travel each way
	// blocks 08:45-10:15.
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	appointment := &models.Task{
		Title:             "Dentist",
		Type:              models.TaskTypeFixed,
		EstimatedMinutes:  60,
		TravelTimeMinutes: 15,
		ScheduledStart:    &start,
		ScheduledEnd:      &end,
	}
	if err := database.CreateTask(ctx, appointment); err != nil {
		t.Fatalf("Failed to create fixed task: %v", err)
	}

	// A one hour task cannot fit into 08:00-08:45; it lands at 10:15.
	task := &models.Task{Title: "Deep work", EstimatedMinutes: 60}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fetched, _ := database.GetTask(ctx, task.ID)
	if fetched.ScheduledStart == nil {
		t.Fatal("Expected the task to be scheduled")
	}
	if fetched.ScheduledStart.Hour() != 10 || fetched.ScheduledStart.Minute() != 15 {
		t.Errorf("Expected start at 10:15 after the blocked window, got %s",
			fetched.ScheduledStart.Format("15:04"))
	}

	// The appointment itself is never rescheduled.
	fa, _ := database.GetTask(ctx, appointment.ID)
	if !fa.ScheduledStart.Equal(start) || !fa.ScheduledEnd.Equal(end) {
		t.Errorf("Fixed task window moved: %s - %s", fa.ScheduledStart, fa.ScheduledEnd)
	}
}

func TestRunPostponesOverflow(t *testing.T) {
	p, database := newTestPlanner(t)
	p.Config = Config{Days: 1, StartHour: 8, EndHour: 10}
	ctx := context.Background()

	big := &models.Task{Title: "Big", EstimatedMinutes: 120, Priority: 5}
	small := &models.Task{Title: "Small", EstimatedMinutes: 30, Priority: 2}
	for _, task := range []*models.Task{big, small} {
		if err := database.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	summary, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Scheduled != 1 || summary.Postponed != 1 {
		t.Fatalf("Expected 1 scheduled / 1 postponed, got %d / %d",
			summary.Scheduled, summary.Postponed)
	}

	fetched, _ := database.GetTask(ctx, small.ID)
	if fetched.Status != models.TaskStatusPostponed {
		t.Errorf("Expected the overflow task POSTPONED, got %s", fetched.Status)
	}

	// A later run with room revives it.
	p.Config = DefaultConfig()
	summary, err = p.Run(ctx)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if summary.Postponed != 0 {
		t.Fatalf("Expected everything scheduled on the wider horizon, got %d postponed", summary.Postponed)
	}

	fetched, _ = database.GetTask(ctx, small.ID)
	if fetched.Status != models.TaskStatusTodo {
		t.Errorf("Expected revived task TODO, got %s", fetched.Status)
	}
}

func TestAgendaOrdered(t *testing.T) {
	p, database := newTestPlanner(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		task := &models.Task{Title: title, EstimatedMinutes: 45}
		if err := database.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	agenda, err := p.Agenda(ctx)
	if err != nil {
		t.Fatalf("Agenda failed: %v", err)
	}
	if len(agenda) != 3 {
		t.Fatalf("Expected 3 agenda entries, got %d", len(agenda))
	}
	for i := 1; i < len(agenda); i++ {
		if agenda[i-1].ScheduledStart.After(*agenda[i].ScheduledStart) {
			t.Errorf("Agenda out of order at index %d", i)
		}
	}
}
