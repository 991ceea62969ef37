// Package planner orchestrates one scheduling run: it snapshots tasks,
// dependency edges and exclusion rules from the store, runs the pure
// scheduling computation, and persists the outcome.
package planner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ldi/cadence/internal/db"
	"github.com/ldi/cadence/internal/schedule"
	"github.com/ldi/cadence/pkg/models"
)

// Config is the scheduling window. Defaults match DefaultConfig.
type Config struct {
	Days      int // horizon length in days, today included
	StartHour int // first schedulable hour of each day
	EndHour   int // end of the schedulable window (24 = midnight)
}

func DefaultConfig() Config {
	return Config{Days: 7, StartHour: 8, EndHour: 24}
}

// Summary is what a run reports regardless of how many tasks found a slot.
type Summary struct {
	Scheduled int `json:"scheduled"`
	Postponed int `json:"postponed"`
}

type Planner struct {
	DB     *db.DB
	Config Config

	// Now is injectable for testing; defaults to time.Now.
	Now func() time.Time

	// Runs against the same store must not interleave: slot availability
	// and in-degree bookkeeping assume a consistent snapshot.
	mu sync.Mutex
}

func New(database *db.DB, cfg Config) *Planner {
	return &Planner{DB: database, Config: cfg, Now: time.Now}
}

// Run executes one scheduling run. Any failure to read the snapshot aborts
// the run before any task timing is mutated.
func (p *Planner) Run(ctx context.Context) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.Now()

	tasks, err := p.DB.ListActiveTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	rules, err := p.DB.ListExclusions(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusion rules: %w", err)
	}

	var fixed, flexible []*models.Task
	for _, t := range tasks {
		if t.Type == models.TaskTypeFixed {
			fixed = append(fixed, t)
		} else {
			flexible = append(flexible, t)
		}
	}

	slots := schedule.BuildHorizon(now, p.Config.Days, p.Config.StartHour, p.Config.EndHour, rules)
	schedule.BlockFixed(slots, fixed)

	result := schedule.Schedule(flexible, slots)

	if err := p.DB.ApplySchedule(ctx, result.Scheduled, result.Postponed); err != nil {
		return nil, err
	}

	return &Summary{
		Scheduled: len(result.Scheduled),
		Postponed: len(result.Postponed),
	}, nil
}

// Agenda returns the currently scheduled flexible tasks ordered by start
// time, for display after a run.
func (p *Planner) Agenda(ctx context.Context) ([]*models.Task, error) {
	tasks, err := p.DB.ListActiveTasks(ctx)
	if err != nil {
		return nil, err
	}

	var agenda []*models.Task
	for _, t := range tasks {
		if t.ScheduledStart != nil && t.ScheduledEnd != nil {
			agenda = append(agenda, t)
		}
	}

	sort.Slice(agenda, func(i, j int) bool {
		return agenda[i].ScheduledStart.Before(*agenda[j].ScheduledStart)
	})

	return agenda, nil
}
