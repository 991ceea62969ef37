package models

// Dependency is a directed edge: the predecessor must finish before the
// successor may start.
type Dependency struct {
	PredecessorID string `json:"predecessor_id"`
	SuccessorID   string `json:"successor_id"`
}
