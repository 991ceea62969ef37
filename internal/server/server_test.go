package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ldi/cadence/internal/db"
	"github.com/ldi/cadence/internal/planner"
	"github.com/ldi/cadence/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}

	p := planner.New(database, planner.DefaultConfig())
	p.Now = func() time.Time {
		return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	}
	return NewServer(database, p), database
}

func TestHandleTasks(t *testing.T) {
	srv, database := newTestServer(t)
	ctx := context.Background()

	task := &models.Task{Title: "List me", EstimatedMinutes: 30}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}

	var tasks []models.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "List me" {
		t.Errorf("Unexpected task list: %+v", tasks)
	}
}

func TestHandleScheduleAndAgenda(t *testing.T) {
	srv, database := newTestServer(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two"} {
		task := &models.Task{Title: title, EstimatedMinutes: 45}
		if err := database.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	// 1. Trigger a run
	req := httptest.NewRequest(http.MethodPost, "/api/schedule", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary planner.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.Scheduled != 2 || summary.Postponed != 0 {
		t.Errorf("Expected 2 scheduled / 0 postponed, got %d / %d",
			summary.Scheduled, summary.Postponed)
	}

	// 2. Agenda reflects the run, ordered by start
	req = httptest.NewRequest(http.MethodGet, "/api/agenda", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var agenda []models.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &agenda); err != nil {
		t.Fatalf("Failed to decode agenda: %v", err)
	}
	if len(agenda) != 2 {
		t.Fatalf("Expected 2 agenda entries, got %d", len(agenda))
	}
	if agenda[0].ScheduledStart.After(*agenda[1].ScheduledStart) {
		t.Error("Agenda not ordered by start time")
	}
}

func TestHandleExclusions(t *testing.T) {
	srv, database := newTestServer(t)
	ctx := context.Background()

	rule := &models.ExclusionRule{
		Type:      models.ExclusionSleep,
		StartTime: "23:00:00",
		EndTime:   "07:00:00",
		IsActive:  true,
	}
	if err := database.CreateExclusion(ctx, rule); err != nil {
		t.Fatalf("Failed to create exclusion: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/exclusions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var rules []models.ExclusionRule
	if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(rules) != 1 || rules[0].Type != models.ExclusionSleep {
		t.Errorf("Unexpected rule list: %+v", rules)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
