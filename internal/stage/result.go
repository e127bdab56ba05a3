package stage

import (
	"time"

	"github.com/rrchai/medrun/internal/run"
)

// Result is the outcome of one stage execution. It is created Pending,
// marked Running at launch, and finished exactly once by the monitor.
type Result struct {
	Stage     run.Stage
	Model     string
	Cohort    string
	StartTime time.Time
	Runtime   time.Duration
	Status    Status

	// ExitCode is nil when the underlying work could not be inspected.
	ExitCode *int

	// ErrorMessage holds a bounded tail of diagnostic output; empty on success.
	ErrorMessage string
}

// NewResult creates a pending result for one stage of a run.
func NewResult(d *run.Descriptor, s run.Stage) *Result {
	return &Result{
		Stage:  s,
		Model:  d.ModelName,
		Cohort: d.Cohort,
		Status: StatusPending,
	}
}

// MarkRunning records the launch instant.
func (r *Result) MarkRunning(at time.Time) error {
	if err := r.transition(StatusRunning); err != nil {
		return err
	}
	r.StartTime = at
	return nil
}

// Finish moves the result to a terminal status. Runtime is the
// wall-clock delta between launch and termination detection.
func (r *Result) Finish(status Status, exitCode *int, errMsg string, at time.Time) error {
	if !status.Terminal() {
		return &TransitionError{Stage: string(r.Stage), FromStatus: r.Status, ToStatus: status}
	}
	if err := r.transition(status); err != nil {
		return err
	}
	r.ExitCode = exitCode
	r.ErrorMessage = errMsg
	if !r.StartTime.IsZero() && at.After(r.StartTime) {
		r.Runtime = at.Sub(r.StartTime)
	}
	return nil
}

func (r *Result) transition(to Status) error {
	if !IsValidTransition(r.Status, to) {
		return &TransitionError{Stage: string(r.Stage), FromStatus: r.Status, ToStatus: to}
	}
	r.Status = to
	return nil
}
