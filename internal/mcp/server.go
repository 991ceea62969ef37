package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ldi/cadence/internal/db"
	"github.com/ldi/cadence/internal/planner"
	"github.com/ldi/cadence/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server exposing task, dependency, exclusion
// and scheduling operations.
func NewServer(database *db.DB, p *planner.Planner) *server.MCPServer {
	s := server.NewMCPServer("Cadence", "0.1.0")

	// Task Management
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task. Flexible tasks are placed by the scheduler; fixed tasks keep their given window."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("type", mcp.Description("FIXED or FLEXIBLE (defaults to FLEXIBLE)")),
		mcp.WithNumber("priority", mcp.Description("Priority 1-5, 5 is highest (defaults to 3)")),
		mcp.WithNumber("estimated_minutes", mcp.Description("Estimated duration in minutes"), mcp.Required()),
		mcp.WithNumber("travel_time_minutes", mcp.Description("Travel buffer applied before and after the task")),
		mcp.WithString("deadline", mcp.Description("Deadline as RFC3339 timestamp")),
		mcp.WithString("scheduled_start", mcp.Description("Start as RFC3339 timestamp (fixed tasks)")),
		mcp.WithString("scheduled_end", mcp.Description("End as RFC3339 timestamp (fixed tasks)")),
	), createTaskHandler(database))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update an existing task's fields."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("type", mcp.Description("New type (FIXED or FLEXIBLE)")),
		mcp.WithNumber("priority", mcp.Description("New priority")),
		mcp.WithNumber("estimated_minutes", mcp.Description("New estimated duration")),
		mcp.WithNumber("travel_time_minutes", mcp.Description("New travel buffer")),
		mcp.WithString("deadline", mcp.Description("New deadline as RFC3339 timestamp, empty string clears it")),
	), updateTaskHandler(database))

	s.AddTool(mcp.NewTool("set_task_status",
		mcp.WithDescription("Update task status (TODO|IN_PROGRESS|DONE|POSTPONED)."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("status", mcp.Description("New status"), mcp.Required()),
	), setTaskStatusHandler(database))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task. Dependency edges touching it are removed."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(database))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters."),
		mcp.WithString("status", mcp.Description("Filter by status")),
		mcp.WithString("type", mcp.Description("Filter by type")),
	), listTasksHandler(database))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by ID."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), getTaskHandler(database))

	// Dependency Management
	s.AddTool(mcp.NewTool("set_predecessors",
		mcp.WithDescription("Replace a task's predecessor set. The edit is rejected if it would create a dependency cycle."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("predecessor_ids", mcp.Description("Comma-separated predecessor task IDs (empty clears)")),
	), setPredecessorsHandler(database))

	s.AddTool(mcp.NewTool("get_predecessors",
		mcp.WithDescription("Get the tasks that must finish before the given task."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), getPredecessorsHandler(database))

	// Exclusion Management
	s.AddTool(mcp.NewTool("add_exclusion",
		mcp.WithDescription("Add a daily excluded-time rule. A start after the end wraps past midnight (e.g. 22:00:00-06:00:00)."),
		mcp.WithString("type", mcp.Description("SLEEP, MEAL, TRAVEL or OTHER"), mcp.Required()),
		mcp.WithString("start_time", mcp.Description("Wall-clock start, HH:MM:SS"), mcp.Required()),
		mcp.WithString("end_time", mcp.Description("Wall-clock end, HH:MM:SS"), mcp.Required()),
	), addExclusionHandler(database))

	s.AddTool(mcp.NewTool("list_exclusions",
		mcp.WithDescription("List excluded-time rules."),
	), listExclusionsHandler(database))

	s.AddTool(mcp.NewTool("remove_exclusion",
		mcp.WithDescription("Remove an excluded-time rule."),
		mcp.WithString("id", mcp.Description("Rule ID"), mcp.Required()),
	), removeExclusionHandler(database))

	// Scheduling
	s.AddTool(mcp.NewTool("run_schedule",
		mcp.WithDescription("Run the auto-scheduler over the coming week and report how many tasks were scheduled vs postponed."),
	), runScheduleHandler(p))

	s.AddTool(mcp.NewTool("get_agenda",
		mcp.WithDescription("Get the currently scheduled tasks ordered by start time."),
	), getAgendaHandler(p))

	s.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Summarize the task store: counts per status and active exclusion rules."),
	), statusHandler(database))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func parseTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return &t, nil
}

func createTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t := &models.Task{
			Title:             mcp.ParseString(request, "title", ""),
			Description:       mcp.ParseString(request, "description", ""),
			Type:              models.TaskType(mcp.ParseString(request, "type", string(models.TaskTypeFlexible))),
			Priority:          mcp.ParseInt(request, "priority", 3),
			EstimatedMinutes:  mcp.ParseInt(request, "estimated_minutes", 0),
			TravelTimeMinutes: mcp.ParseInt(request, "travel_time_minutes", 0),
			Status:            models.TaskStatusTodo,
		}

		var err error
		if t.Deadline, err = parseTimestamp(mcp.ParseString(request, "deadline", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t.ScheduledStart, err = parseTimestamp(mcp.ParseString(request, "scheduled_start", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t.ScheduledEnd, err = parseTimestamp(mcp.ParseString(request, "scheduled_end", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := database.CreateTask(ctx, t); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task '%s' created with ID %s", t.Title, t.ID)), nil
	}
}

func updateTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		t, err := database.GetTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with ID '%s' not found", id)), nil
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			t.Title = title
		}
		if description, ok := args["description"].(string); ok {
			t.Description = description
		}
		if typ, ok := args["type"].(string); ok {
			t.Type = models.TaskType(typ)
		}
		if priority, ok := args["priority"].(float64); ok {
			t.Priority = int(priority)
		}
		if minutes, ok := args["estimated_minutes"].(float64); ok {
			t.EstimatedMinutes = int(minutes)
		}
		if travel, ok := args["travel_time_minutes"].(float64); ok {
			t.TravelTimeMinutes = int(travel)
		}
		if deadline, ok := args["deadline"].(string); ok {
			t.Deadline, err = parseTimestamp(deadline)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		if err := database.UpdateTask(ctx, t); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task updated successfully"), nil
	}
}

func setTaskStatusHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		status := mcp.ParseString(request, "status", "")

		if err := database.UpdateTaskStatus(ctx, id, models.TaskStatus(status)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task status updated successfully"), nil
	}
}

func deleteTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		if err := database.DeleteTask(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func listTasksHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		var status *models.TaskStatus
		if s, ok := args["status"].(string); ok {
			ts := models.TaskStatus(s)
			status = &ts
		}

		var typ *models.TaskType
		if s, ok := args["type"].(string); ok {
			tt := models.TaskType(s)
			typ = &tt
		}

		tasks, err := database.ListTasks(ctx, status, typ)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]interface{}{"tasks": tasks})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		t, err := database.GetTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with ID '%s' not found", id)), nil
		}

		data, err := json.Marshal(t)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func setPredecessorsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		raw := mcp.ParseString(request, "predecessor_ids", "")

		var predIDs []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				predIDs = append(predIDs, p)
			}
		}

		if err := database.ReplacePredecessors(ctx, id, predIDs); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task now has %d predecessor(s)", len(predIDs))), nil
	}
}

func getPredecessorsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		preds, err := database.GetPredecessors(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]interface{}{"predecessors": preds})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func addExclusionHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r := &models.ExclusionRule{
			Type:      models.ExclusionType(mcp.ParseString(request, "type", string(models.ExclusionOther))),
			StartTime: mcp.ParseString(request, "start_time", ""),
			EndTime:   mcp.ParseString(request, "end_time", ""),
			IsActive:  true,
		}

		if err := database.CreateExclusion(ctx, r); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Exclusion %s %s-%s created with ID %s", r.Type, r.StartTime, r.EndTime, r.ID)), nil
	}
}

func listExclusionsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rules, err := database.ListExclusions(ctx, false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]interface{}{"exclusions": rules})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func removeExclusionHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		if err := database.DeleteExclusion(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Exclusion removed successfully"), nil
	}
}

func runScheduleHandler(p *planner.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := p.Run(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Schedule updated: %d scheduled, %d postponed", summary.Scheduled, summary.Postponed)), nil
	}
}

func statusHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := database.ListTasks(ctx, nil, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		rules, err := database.ListExclusions(ctx, true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		counts := make(map[models.TaskStatus]int)
		scheduled := 0
		for _, t := range tasks {
			counts[t.Status]++
			if t.ScheduledStart != nil {
				scheduled++
			}
		}

		data, err := json.Marshal(map[string]interface{}{
			"total_tasks":       len(tasks),
			"scheduled":         scheduled,
			"active_exclusions": len(rules),
			"todo":              counts[models.TaskStatusTodo],
			"in_progress":       counts[models.TaskStatusInProgress],
			"done":              counts[models.TaskStatusDone],
			"postponed":         counts[models.TaskStatusPostponed],
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getAgendaHandler(p *planner.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agenda, err := p.Agenda(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]interface{}{"agenda": agenda})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
