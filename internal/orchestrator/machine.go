// Package orchestrator sequences the three-stage evaluation pipeline.
package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// RunState is the pipeline-level state of one run.
type RunState string

// Run states. Succeeded and Failed are terminal.
const (
	RunStateIdle              RunState = "idle"
	RunStateInferenceRunning  RunState = "inference_running"
	RunStateProcessingRunning RunState = "processing_running"
	RunStateScoringRunning    RunState = "scoring_running"
	RunStateSucceeded         RunState = "succeeded"
	RunStateFailed            RunState = "failed"
)

// validTransitions defines which run state transitions are allowed.
// A stage may only start when its predecessor completed.
var validTransitions = map[RunState]map[RunState]bool{
	RunStateIdle: {
		RunStateInferenceRunning: true, // Pipeline started
		RunStateFailed:           true, // Launch failed before any stage
	},
	RunStateInferenceRunning: {
		RunStateProcessingRunning: true, // Inference completed
		RunStateFailed:            true, // Inference failed or unknown
	},
	RunStateProcessingRunning: {
		RunStateScoringRunning: true, // Processing completed
		RunStateFailed:         true, // Processing failed or unknown
	},
	RunStateScoringRunning: {
		RunStateSucceeded: true, // Scoring completed
		RunStateFailed:    true, // Scoring failed or unknown
	},
}

// TransitionError is returned when an invalid run state transition is
// attempted.
type TransitionError struct {
	RunID     string
	FromState RunState
	ToState   RunState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition for run %s: %s -> %s",
		e.RunID, e.FromState, e.ToState)
}

// TransitionEvent represents a run state transition that occurred.
type TransitionEvent struct {
	RunID     string
	FromState RunState
	ToState   RunState
	Reason    string
	Timestamp time.Time
}

// TransitionCallback is called when a run state transition occurs.
type TransitionCallback func(event TransitionEvent)

// Machine tracks the state of one run with validated transitions.
type Machine struct {
	mu        sync.Mutex
	runID     string
	state     RunState
	callbacks []TransitionCallback
}

// NewMachine creates a machine in the Idle state.
func NewMachine(runID string) *Machine {
	return &Machine{runID: runID, state: RunStateIdle}
}

// State returns the current run state.
func (m *Machine) State() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTransition registers a callback invoked on every transition.
func (m *Machine) OnTransition(cb TransitionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Transition attempts to move the run to a new state.
func (m *Machine) Transition(to RunState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if from == to {
		return nil
	}
	targets, ok := validTransitions[from]
	if !ok || !targets[to] {
		return &TransitionError{RunID: m.runID, FromState: from, ToState: to}
	}

	m.state = to

	event := TransitionEvent{
		RunID:     m.runID,
		FromState: from,
		ToState:   to,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	for _, cb := range m.callbacks {
		cb(event)
	}
	return nil
}
