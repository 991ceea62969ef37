// Package schedule implements the task auto-scheduler: slot generation with
// excluded-time rules, fixed-task blocking, and the greedy topological
// placement of flexible tasks. Everything in this package is a pure
// computation over in-memory snapshots; persistence happens in the caller.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/ldi/cadence/pkg/models"
)

// SlotDuration is the atomic unit of schedulable time. No task occupies a
// fraction of a slot.
const SlotDuration = 15 * time.Minute

const slotMinutes = 15

// Slot is a half-open interval [Start, End) of fixed width. Slots are built
// fresh for each scheduling run and mutated in place as fixed tasks and
// placements consume them.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// clockMinutes parses a wall-clock "HH:MM:SS" or "HH:MM" string into minutes
// since midnight.
func clockMinutes(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	if h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// excludedBy reports whether the slot window [startMin, endMin) in minutes
// since midnight intersects the rule. A rule whose start is after its end
// wraps past midnight and excludes the union of its late-night and
// early-morning portions.
func excludedBy(startMin, endMin int, rule models.ExclusionRule) bool {
	if !rule.IsActive {
		return false
	}

	ruleStart, ok := clockMinutes(rule.StartTime)
	if !ok {
		return false
	}
	ruleEnd, ok := clockMinutes(rule.EndTime)
	if !ok {
		return false
	}

	if ruleStart < ruleEnd {
		// Standard range, e.g. 12:00-13:00.
		return startMin < ruleEnd && endMin > ruleStart
	}

	// Wrapping range, e.g. 22:00-06:00: intersection with [start, 24:00)
	// or with [00:00, end).
	return endMin > ruleStart || startMin < ruleEnd
}

// GenerateDaySlots produces the ordered slot sequence for one calendar day
// between startHour:00 and endHour:00. Slots that intersect an active
// exclusion rule are omitted entirely, so the sequence has holes where the
// day is off-limits.
func GenerateDaySlots(day time.Time, startHour, endHour int, rules []models.ExclusionRule) []*Slot {
	var slots []*Slot

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	current := dayStart.Add(time.Duration(startHour) * time.Hour)
	end := dayStart.Add(time.Duration(endHour) * time.Hour)

	for current.Before(end) {
		next := current.Add(SlotDuration)

		startMin := current.Hour()*60 + current.Minute()
		endMin := next.Hour()*60 + next.Minute()
		if endMin == 0 {
			// A slot ending at midnight belongs to this day: compare
			// its end as 24:00, not 00:00.
			endMin = 24 * 60
		}

		excluded := false
		for _, rule := range rules {
			if excludedBy(startMin, endMin, rule) {
				excluded = true
				break
			}
		}

		if !excluded {
			slots = append(slots, &Slot{Start: current, End: next, Available: true})
		}
		current = next
	}

	return slots
}

// BuildHorizon generates slots for `days` consecutive days starting at now's
// calendar day, then drops every slot whose end is not strictly after now.
// The scheduler therefore never places work into the past.
func BuildHorizon(now time.Time, days, startHour, endHour int, rules []models.ExclusionRule) []*Slot {
	var all []*Slot
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, i)
		all = append(all, GenerateDaySlots(day, startHour, endHour, rules)...)
	}

	var future []*Slot
	for _, s := range all {
		if s.End.After(now) {
			future = append(future, s)
		}
	}
	return future
}

// slotsNeeded converts minutes to a whole number of slots, rounding up.
func slotsNeeded(minutes int) int {
	return (minutes + slotMinutes - 1) / slotMinutes
}

// CanFit reports whether durationMinutes worth of consecutive available
// slots exist starting at startIndex.
func CanFit(slots []*Slot, startIndex, durationMinutes int) bool {
	need := slotsNeeded(durationMinutes)

	if startIndex+need > len(slots) {
		return false
	}

	for i := 0; i < need; i++ {
		if !slots[startIndex+i].Available {
			return false
		}
	}

	return true
}

// Occupy marks durationMinutes worth of slots unavailable starting at
// startIndex.
func Occupy(slots []*Slot, startIndex, durationMinutes int) {
	need := slotsNeeded(durationMinutes)
	for i := 0; i < need; i++ {
		if startIndex+i < len(slots) {
			slots[startIndex+i].Available = false
		}
	}
}

// BlockFixed marks every slot intersecting a fixed task's window, expanded by
// its travel buffer on both ends, as unavailable. Fixed tasks missing either
// timestamp are skipped. This must run before flexible placement consumes
// the slot sequence.
func BlockFixed(slots []*Slot, fixed []*models.Task) {
	for _, t := range fixed {
		if t.ScheduledStart == nil || t.ScheduledEnd == nil {
			continue
		}

		travel := time.Duration(t.TravelTimeMinutes) * time.Minute
		blockStart := t.ScheduledStart.Add(-travel)
		blockEnd := t.ScheduledEnd.Add(travel)

		for _, s := range slots {
			if s.Start.Before(blockEnd) && s.End.After(blockStart) {
				s.Available = false
			}
		}
	}
}
