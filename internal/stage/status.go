// Package stage executes pipeline stages and tracks their results.
package stage

import "fmt"

// Status is the lifecycle state of one stage execution.
type Status string

// Stage statuses. Completed, Failed, and Unknown are terminal.
const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusUnknown   Status = "Unknown"
)

// validTransitions defines which status transitions are allowed.
// Terminal statuses have no targets, which makes status monotonic.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning: true, // Launched
		StatusFailed:  true, // Launch failed before the work started
	},
	StatusRunning: {
		StatusCompleted: true, // Exit code 0
		StatusFailed:    true, // Non-zero exit code
		StatusUnknown:   true, // Outcome could not be inspected
	},
}

// IsValidTransition checks if a status transition is allowed. A
// terminal status admits no transitions, not even to itself, so a
// finished result can never be rewritten.
func IsValidTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusUnknown:
		return true
	}
	return false
}

// TransitionError is returned when an invalid status transition is attempted.
type TransitionError struct {
	Stage      string
	FromStatus Status
	ToStatus   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for stage %s: %s -> %s",
		e.Stage, e.FromStatus, e.ToStatus)
}
