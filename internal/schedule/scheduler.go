package schedule

import (
	"sort"
	"time"

	"github.com/ldi/cadence/pkg/models"
)

// Result partitions the flexible input set: every submitted task that is not
// DONE lands in exactly one of the two lists. Tasks are copies; the input
// snapshot is never mutated.
type Result struct {
	Scheduled []*models.Task
	Postponed []*models.Task
}

// Schedule places flexible tasks into the slot sequence, one priority tier
// at a time in descending order. Within a tier, tasks are processed in
// topological order over same-tier dependency edges; the ready task with the
// earliest deadline (shortest duration when deadlines tie or are absent)
// goes first. A task that cannot be placed is postponed along with, by
// in-degree starvation, every task downstream of it in the tier.
//
// Deadlines only influence ordering. They are never enforced as placement
// constraints: a task may land after its own deadline if nothing earlier
// is free.
func Schedule(tasks []*models.Task, slots []*Slot) *Result {
	result := &Result{}

	byPriority := make(map[int][]*models.Task)
	for _, t := range tasks {
		byPriority[t.Priority] = append(byPriority[t.Priority], t)
	}

	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))

	for _, priority := range priorities {
		scheduleTier(byPriority[priority], slots, result)
	}

	return result
}

// scheduleTier fully resolves one priority tier: every active flexible task
// in it ends up scheduled or postponed before the next tier runs.
func scheduleTier(group []*models.Task, slots []*Slot, result *Result) {
	var active []*models.Task
	for _, t := range group {
		if t.Status != models.TaskStatusDone && t.Type != models.TaskTypeFixed {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return
	}

	// Tier graph as an index arena: task id -> small index, parallel
	// in-degree and adjacency slices. Rebuilt per tier, discarded after.
	index := make(map[string]int, len(active))
	for i, t := range active {
		index[t.ID] = i
	}

	inDegree := make([]int, len(active))
	adj := make([][]int, len(active))
	for i, t := range active {
		for _, predID := range t.Predecessors {
			// Cross-tier predecessor references are dropped here:
			// only edges with both endpoints in this tier count.
			if pi, ok := index[predID]; ok {
				adj[pi] = append(adj[pi], i)
				inDegree[i]++
			}
		}
	}

	var ready []int
	for i := range active {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	// Placed same-tier tasks by ID, for predecessor start bounds. The map
	// is tier-local: an edge from a higher tier never constrains a
	// placement here.
	placed := make(map[string]*models.Task, len(active))
	handled := make(map[string]bool, len(active))

	for len(ready) > 0 {
		// Earliest deadline wins; a task with a deadline always outranks
		// one without; otherwise shortest duration first. Stable sort
		// keeps unlock order as the final tiebreak.
		sort.SliceStable(ready, func(a, b int) bool {
			return readyBefore(active[ready[a]], active[ready[b]])
		})

		i := ready[0]
		ready = ready[1:]
		task := active[i]
		handled[task.ID] = true

		if placeTask(task, slots, placed, result) {
			for _, si := range adj[i] {
				inDegree[si]--
				if inDegree[si] == 0 {
					ready = append(ready, si)
				}
			}
		} else {
			cp := *task
			cp.Status = models.TaskStatusPostponed
			cp.ScheduledStart = nil
			cp.ScheduledEnd = nil
			result.Postponed = append(result.Postponed, &cp)
			// Successors' in-degree is deliberately not decremented:
			// they never reach the ready queue and the sweep below
			// postpones them, which cascades down the chain.
		}
	}

	// Anything stuck behind a postponed predecessor never entered the
	// ready queue. Sweep it into the postponed list.
	for _, t := range active {
		if !handled[t.ID] {
			cp := *t
			cp.Status = models.TaskStatusPostponed
			cp.ScheduledStart = nil
			cp.ScheduledEnd = nil
			result.Postponed = append(result.Postponed, &cp)
		}
	}
}

func readyBefore(a, b *models.Task) bool {
	if a.Deadline != nil && b.Deadline != nil {
		if !a.Deadline.Equal(*b.Deadline) {
			return a.Deadline.Before(*b.Deadline)
		}
		return a.EstimatedMinutes < b.EstimatedMinutes
	}
	if a.Deadline != nil {
		return true
	}
	if b.Deadline != nil {
		return false
	}
	return a.EstimatedMinutes < b.EstimatedMinutes
}

// placeTask scans the slot sequence left to right for the first run of
// available slots that fits the task plus its travel buffers and, if a
// predecessor has been placed, starts no earlier than that predecessor's
// end. The occupied block spans travel + estimate + travel, while the
// recorded window covers only the task's own duration.
func placeTask(task *models.Task, slots []*Slot, placed map[string]*models.Task, result *Result) bool {
	var minStartBound time.Time
	for _, predID := range task.Predecessors {
		if pred, ok := placed[predID]; ok && pred.ScheduledEnd != nil {
			if pred.ScheduledEnd.After(minStartBound) {
				minStartBound = *pred.ScheduledEnd
			}
		}
	}

	travel := time.Duration(task.TravelTimeMinutes) * time.Minute
	totalMinutes := task.EstimatedMinutes + 2*task.TravelTimeMinutes

	for i := range slots {
		start := slots[i].Start.Add(travel)

		if !minStartBound.IsZero() && start.Before(minStartBound) {
			continue
		}

		if !CanFit(slots, i, totalMinutes) {
			continue
		}

		Occupy(slots, i, totalMinutes)

		end := start.Add(time.Duration(task.EstimatedMinutes) * time.Minute)
		cp := *task
		cp.ScheduledStart = &start
		cp.ScheduledEnd = &end
		result.Scheduled = append(result.Scheduled, &cp)
		placed[cp.ID] = &cp
		return true
	}

	return false
}
