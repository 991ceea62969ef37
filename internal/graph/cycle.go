// Package graph holds pure dependency-graph checks over snapshots of the
// stored edge set.
package graph

import "github.com/ldi/cadence/pkg/models"

// WouldCreateCycle reports whether replacing taskID's predecessor set with
// proposedPredecessorIDs would close a cycle in the dependency graph.
//
// Each proposed edge is predecessor -> taskID. If taskID can already reach a
// proposed predecessor by following successor edges, accepting that edge
// would make the path circular. The check runs over the full edge set; it is
// deliberately not scoped to priority tiers.
func WouldCreateCycle(taskID string, proposedPredecessorIDs []string, edges []models.Dependency) bool {
	if len(proposedPredecessorIDs) == 0 {
		return false
	}

	proposed := make(map[string]bool, len(proposedPredecessorIDs))
	for _, id := range proposedPredecessorIDs {
		// Trivial case: a task cannot precede itself.
		if id == taskID {
			return true
		}
		proposed[id] = true
	}

	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.PredecessorID] = append(adj[e.PredecessorID], e.SuccessorID)
	}

	// Reachability search from taskID over successor edges.
	visited := make(map[string]bool)
	stack := []string{taskID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		if proposed[current] {
			return true
		}

		for _, next := range adj[current] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}

	return false
}
