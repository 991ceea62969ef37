package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ldi/cadence/internal/db"
	"github.com/ldi/cadence/internal/mcp"
	"github.com/ldi/cadence/internal/planner"
	"github.com/ldi/cadence/internal/server"
	"github.com/ldi/cadence/internal/ui"
	"github.com/ldi/cadence/pkg/models"
	"github.com/robfig/cron/v3"
)

var (
	dbPath       string
	snapshotPath string
	horizonDays  int
	startHour    int
	endHour      int
)

func main() {
	flag.StringVar(&dbPath, "db-path", ".cadence/cadence.db", "Path to database file")
	flag.StringVar(&snapshotPath, "snapshot-path", ".cadence/snapshot.jsonl", "Path to snapshot file")
	flag.IntVar(&horizonDays, "days", 7, "Scheduling horizon in days")
	flag.IntVar(&startHour, "start-hour", 8, "First schedulable hour of each day")
	flag.IntVar(&endHour, "end-hour", 24, "End of the schedulable window (24 = midnight)")
	flag.Parse()

	var command string
	var args []string

	if flag.NArg() == 0 {
		selected, err := ui.RunMenu()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running menu: %v\n", err)
			os.Exit(1)
		}
		if selected == "" {
			os.Exit(0)
		}
		command = selected
		args = []string{}
	} else {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "add":
		err = runAdd(args)
	case "list-tasks":
		err = runListTasks(args)
	case "done":
		err = runDone(args)
	case "delete-task":
		err = runDeleteTask(args)
	case "deps":
		err = runDeps(args)
	case "exclude":
		err = runExclude(args)
	case "schedule":
		err = runSchedule(args)
	case "status":
		err = runStatus(args)
	case "watch":
		err = runWatch(args)
	case "web":
		err = runWeb(args)
	case "mcp":
		err = runMCP(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func plannerConfig() planner.Config {
	return planner.Config{Days: horizonDays, StartHour: startHour, EndHour: endHour}
}

func openDB(ctx context.Context) (*db.DB, error) {
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func runInit(args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	cadenceDir := filepath.Join(targetDir, ".cadence")
	if err := os.MkdirAll(cadenceDir, 0755); err != nil {
		return fmt.Errorf("failed to create .cadence directory: %w", err)
	}
	fmt.Println("✓ Created .cadence/ directory")

	gitignorePath := filepath.Join(cadenceDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("cadence.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Println("✓ Created .cadence/.gitignore")

	// Default paths if not overridden by flags
	finalDbPath := dbPath
	if dbPath == ".cadence/cadence.db" {
		finalDbPath = filepath.Join(cadenceDir, "cadence.db")
	}

	finalSnapshotPath := snapshotPath
	if snapshotPath == ".cadence/snapshot.jsonl" {
		finalSnapshotPath = filepath.Join(cadenceDir, "snapshot.jsonl")
	}

	database, err := db.Open(finalDbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Printf("✓ Initialized database at %s\n", finalDbPath)

	// Import an existing snapshot, or seed the default sleep window
	if _, err := os.Stat(finalSnapshotPath); err == nil {
		if err := database.ImportSnapshot(ctx, finalSnapshotPath); err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		fmt.Printf("✓ Imported snapshot from %s\n", finalSnapshotPath)
	} else {
		rules, err := database.ListExclusions(ctx, false)
		if err != nil {
			return fmt.Errorf("failed to check for existing exclusions: %w", err)
		}
		if len(rules) == 0 {
			sleep := &models.ExclusionRule{
				Type:      models.ExclusionSleep,
				StartTime: "23:00:00",
				EndTime:   "07:00:00",
				IsActive:  true,
			}
			if err := database.CreateExclusion(ctx, sleep); err != nil {
				return fmt.Errorf("failed to seed sleep exclusion: %w", err)
			}
			fmt.Println("✓ Seeded default sleep exclusion (23:00-07:00)")
		}
	}

	fmt.Println("✓ Cadence initialized successfully")
	return nil
}

func runAdd(args []string) error {
	addFlags := flag.NewFlagSet("add", flag.ContinueOnError)
	title := addFlags.String("title", "", "Task title (required)")
	description := addFlags.String("desc", "", "Task description")
	taskType := addFlags.String("type", "FLEXIBLE", "Task type (FIXED or FLEXIBLE)")
	priority := addFlags.Int("priority", 3, "Priority 1-5, 5 is highest")
	minutes := addFlags.Int("minutes", 0, "Estimated duration in minutes (required)")
	travel := addFlags.Int("travel", 0, "Travel buffer in minutes, applied before and after")
	deadline := addFlags.String("deadline", "", "Deadline (RFC3339)")
	start := addFlags.String("start", "", "Fixed start (RFC3339, FIXED tasks)")
	end := addFlags.String("end", "", "Fixed end (RFC3339, FIXED tasks)")
	after := addFlags.String("after", "", "Comma-separated predecessor task IDs")
	if err := addFlags.Parse(args); err != nil {
		return err
	}

	if *title == "" {
		return fmt.Errorf("-title is required")
	}
	if *minutes <= 0 {
		return fmt.Errorf("-minutes must be positive")
	}

	t := &models.Task{
		Title:             *title,
		Description:       *description,
		Type:              models.TaskType(*taskType),
		Priority:          *priority,
		EstimatedMinutes:  *minutes,
		TravelTimeMinutes: *travel,
		Status:            models.TaskStatusTodo,
	}

	var err error
	if t.Deadline, err = parseFlagTime(*deadline); err != nil {
		return err
	}
	if t.ScheduledStart, err = parseFlagTime(*start); err != nil {
		return err
	}
	if t.ScheduledEnd, err = parseFlagTime(*end); err != nil {
		return err
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.CreateTask(ctx, t); err != nil {
		return err
	}
	fmt.Printf("✓ Created task %s (%s)\n", t.Title, t.ID)

	if *after != "" {
		predIDs := splitIDs(*after)
		if err := database.ReplacePredecessors(ctx, t.ID, predIDs); err != nil {
			// The task exists; only its dependency linkage is incomplete.
			fmt.Fprintf(os.Stderr, "Warning: task created but predecessors not set: %v\n", err)
			return nil
		}
		fmt.Printf("✓ Set %d predecessor(s)\n", len(predIDs))
	}

	return nil
}

func parseFlagTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return &t, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func runListTasks(args []string) error {
	taskFlags := flag.NewFlagSet("list-tasks", flag.ContinueOnError)
	statusFilter := taskFlags.String("status", "", "Filter by status (TODO, IN_PROGRESS, DONE, POSTPONED)")
	typeFilter := taskFlags.String("type", "", "Filter by type (FIXED, FLEXIBLE)")
	if err := taskFlags.Parse(args); err != nil {
		return err
	}

	var status *models.TaskStatus
	if *statusFilter != "" {
		s := models.TaskStatus(*statusFilter)
		status = &s
	}

	var typ *models.TaskType
	if *typeFilter != "" {
		t := models.TaskType(*typeFilter)
		typ = &t
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	tasks, err := database.ListTasks(ctx, status, typ)
	if err != nil {
		return err
	}

	fmt.Printf("%-36s %-25s %-8s %-4s %-12s %-16s\n", "ID", "TITLE", "TYPE", "PRI", "STATUS", "SCHEDULED")
	fmt.Println(strings.Repeat("-", 105))
	for _, t := range tasks {
		scheduled := "-"
		if t.ScheduledStart != nil {
			scheduled = t.ScheduledStart.Format("Mon 15:04")
		}
		fmt.Printf("%-36s %-25s %-8s %-4d %-12s %-16s\n",
			t.ID, truncate(t.Title, 25), t.Type, t.Priority, t.Status, scheduled)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func runDone(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cadence done <task-id>")
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.UpdateTaskStatus(ctx, args[0], models.TaskStatusDone); err != nil {
		return err
	}
	fmt.Println("✓ Task completed")
	return nil
}

func runDeleteTask(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cadence delete-task <task-id>")
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.DeleteTask(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("✓ Task deleted")
	return nil
}

func runDeps(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cadence deps <task-id> [pred-id,pred-id,...]")
	}

	taskID := args[0]
	var predIDs []string
	if len(args) > 1 {
		predIDs = splitIDs(args[1])
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.ReplacePredecessors(ctx, taskID, predIDs); err != nil {
		return err
	}
	fmt.Printf("✓ Task now has %d predecessor(s)\n", len(predIDs))
	return nil
}

func runExclude(args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: cadence exclude <command> [arguments]")
		fmt.Println("\nCommands:")
		fmt.Println("  add -type TYPE -from HH:MM:SS -to HH:MM:SS")
		fmt.Println("  list")
		fmt.Println("  remove <rule-id>")
		return nil
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	switch args[0] {
	case "add":
		excludeFlags := flag.NewFlagSet("exclude add", flag.ContinueOnError)
		excludeType := excludeFlags.String("type", "OTHER", "Rule type (SLEEP, MEAL, TRAVEL, OTHER)")
		from := excludeFlags.String("from", "", "Wall-clock start, HH:MM:SS")
		to := excludeFlags.String("to", "", "Wall-clock end, HH:MM:SS")
		if err := excludeFlags.Parse(args[1:]); err != nil {
			return err
		}
		if *from == "" || *to == "" {
			return fmt.Errorf("-from and -to are required")
		}

		r := &models.ExclusionRule{
			Type:      models.ExclusionType(*excludeType),
			StartTime: *from,
			EndTime:   *to,
			IsActive:  true,
		}
		if err := database.CreateExclusion(ctx, r); err != nil {
			return err
		}
		fmt.Printf("✓ Added %s exclusion %s-%s (%s)\n", r.Type, r.StartTime, r.EndTime, r.ID)
		return nil

	case "list":
		rules, err := database.ListExclusions(ctx, false)
		if err != nil {
			return err
		}
		fmt.Printf("%-36s %-8s %-10s %-10s %-7s\n", "ID", "TYPE", "FROM", "TO", "ACTIVE")
		fmt.Println(strings.Repeat("-", 75))
		for _, r := range rules {
			fmt.Printf("%-36s %-8s %-10s %-10s %-7t\n", r.ID, r.Type, r.StartTime, r.EndTime, r.IsActive)
		}
		return nil

	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("usage: cadence exclude remove <rule-id>")
		}
		if err := database.DeleteExclusion(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("✓ Exclusion removed")
		return nil

	default:
		return fmt.Errorf("unknown exclude command: %s", args[0])
	}
}

func runSchedule(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(snapshotPath)

	p := planner.New(database, plannerConfig())
	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Schedule updated: %d scheduled, %d postponed\n", summary.Scheduled, summary.Postponed)

	agenda, err := p.Agenda(ctx)
	if err != nil {
		return err
	}
	if len(agenda) > 0 {
		fmt.Println("\nAgenda:")
		for _, t := range agenda {
			fmt.Printf("  %s - %s  %s (priority %d)\n",
				t.ScheduledStart.Format("Mon 02 Jan 15:04"),
				t.ScheduledEnd.Format("15:04"),
				t.Title, t.Priority)
		}
	}
	return nil
}

func runStatus(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	tasks, err := database.ListTasks(ctx, nil, nil)
	if err != nil {
		return err
	}

	rules, err := database.ListExclusions(ctx, true)
	if err != nil {
		return err
	}

	statusCounts := make(map[models.TaskStatus]int)
	scheduled := 0
	for _, t := range tasks {
		statusCounts[t.Status]++
		if t.ScheduledStart != nil {
			scheduled++
		}
	}

	fmt.Println("Cadence Status")
	fmt.Println("==============")
	fmt.Printf("Total Tasks:       %d\n", len(tasks))
	fmt.Printf("With a Slot:       %d\n", scheduled)
	fmt.Printf("Active Exclusions: %d\n", len(rules))

	fmt.Println("\nTask Breakdown:")
	fmt.Printf("  Todo:        %d\n", statusCounts[models.TaskStatusTodo])
	fmt.Printf("  In Progress: %d\n", statusCounts[models.TaskStatusInProgress])
	fmt.Printf("  Done:        %d\n", statusCounts[models.TaskStatusDone])
	fmt.Printf("  Postponed:   %d\n", statusCounts[models.TaskStatusPostponed])

	return nil
}

func runWatch(args []string) error {
	watchFlags := flag.NewFlagSet("watch", flag.ContinueOnError)
	spec := watchFlags.String("cron", "0 * * * *", "Cron expression for scheduling runs")
	if err := watchFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(snapshotPath)

	p := planner.New(database, plannerConfig())

	c := cron.New()
	_, err = c.AddFunc(*spec, func() {
		summary, err := p.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scheduling run failed: %v\n", err)
			return
		}
		fmt.Printf("[%s] Schedule updated: %d scheduled, %d postponed\n",
			time.Now().Format("15:04:05"), summary.Scheduled, summary.Postponed)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", *spec, err)
	}

	// Run once immediately, then on the cron cadence.
	if summary, err := p.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Initial scheduling run failed: %v\n", err)
	} else {
		fmt.Printf("Schedule updated: %d scheduled, %d postponed\n", summary.Scheduled, summary.Postponed)
	}

	c.Start()
	fmt.Printf("Watching (cron %q), press Ctrl+C to stop\n", *spec)

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func runWeb(args []string) error {
	webFlags := flag.NewFlagSet("web", flag.ContinueOnError)
	port := webFlags.String("port", "8000", "Port to listen on")
	if err := webFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(snapshotPath)

	p := planner.New(database, plannerConfig())
	srv := server.NewServer(database, p)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Listening on http://localhost:%s\n", *port)
	if err := srv.Start(fmt.Sprintf(":%s", *port)); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runMCP(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(snapshotPath)

	p := planner.New(database, plannerConfig())
	s := mcp.NewServer(database, p)
	return mcp.Serve(s)
}
