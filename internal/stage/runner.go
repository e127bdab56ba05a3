package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"github.com/rrchai/medrun/internal/config"
	"github.com/rrchai/medrun/internal/container"
	"github.com/rrchai/medrun/internal/logging"
	"github.com/rrchai/medrun/internal/run"
	"github.com/rrchai/medrun/internal/shell"
)

// LaunchError is returned when a unit of work could not be started,
// as opposed to the launched work later failing.
type LaunchError struct {
	Stage run.Stage
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch stage %s: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Outcome is the raw terminal observation of a unit of work before
// classification into a status.
type Outcome struct {
	// ExitCode is meaningful only when Inspectable is true.
	ExitCode int

	// Inspectable is false when the exit code could not be determined.
	Inspectable bool

	// OutputTail holds the trailing diagnostic output lines.
	OutputTail string

	// MarkerLine is set when a failure marker was found in the output
	// regardless of exit code.
	MarkerLine string

	// Diagnostic explains an uninspectable outcome.
	Diagnostic string
}

// Handle is a started unit of work the completion monitor can wait on.
type Handle struct {
	Stage     run.Stage
	StartedAt time.Time

	wait func(ctx context.Context) Outcome
}

// Wait blocks until the unit of work terminates.
func (h *Handle) Wait(ctx context.Context) Outcome {
	return h.wait(ctx)
}

// Runner launches stage units of work without blocking on their completion.
type Runner struct {
	Executor   shell.Executor
	Containers *container.Client
	TailLines  int
	Logger     zerolog.Logger
}

// NewRunner creates a Runner over the given executor.
func NewRunner(executor shell.Executor, containers *container.Client, cfg config.StageConfig) *Runner {
	return &Runner{
		Executor:   executor,
		Containers: containers,
		TailLines:  cfg.OutputTailLines,
		Logger:     logging.Component("stage-runner"),
	}
}

// LaunchInference starts the submitted model container in detached mode
// and returns a handle for the completion monitor.
func (r *Runner) LaunchInference(ctx context.Context, d *run.Descriptor, image string) (*Handle, error) {
	if err := ensureDirs(d.OutputDir, d.LogDir); err != nil {
		return nil, &LaunchError{Stage: run.StageInference, Err: err}
	}

	spec := container.RunSpec{
		Image:     image,
		Name:      d.ContainerName(),
		InputDir:  d.InputDir,
		OutputDir: d.OutputDir,
	}

	// A stale container from an earlier attempt blocks the name.
	if err := r.Containers.Remove(ctx, spec.Name); err != nil {
		r.Logger.Debug().Err(err).Str("container", spec.Name).Msg("no stale container to remove")
	}

	id, err := r.Containers.Run(ctx, spec)
	if err != nil {
		return nil, &LaunchError{Stage: run.StageInference, Err: err}
	}

	r.Logger.Info().
		Str("model", d.ModelName).
		Str("cohort", d.Cohort).
		Str("container_id", id).
		Msg("inference container started")

	started := time.Now().UTC()
	tailLines := r.TailLines

	return &Handle{
		Stage:     run.StageInference,
		StartedAt: started,
		wait: func(ctx context.Context) Outcome {
			code, err := r.Containers.Wait(ctx, id)
			if err != nil {
				// docker wait can fail transiently; inspect is the fallback.
				code, err = r.Containers.ExitCode(ctx, id)
			}
			if err != nil {
				return Outcome{
					Inspectable: false,
					Diagnostic:  fmt.Sprintf("could not determine container outcome: %v", err),
				}
			}

			tail := ""
			if code != 0 {
				logs, logErr := r.Containers.Logs(ctx, id, tailLines)
				if logErr != nil {
					r.Logger.Warn().Err(logErr).Str("container_id", id).Msg("failed to capture container logs")
				}
				tail = logs
			}
			return Outcome{ExitCode: code, Inspectable: true, OutputTail: tail}
		},
	}, nil
}

// LaunchScript starts an external script stage. The work itself runs when
// the handle is waited on; the launch call validates the argument set so
// a missing interpreter or script surfaces as a LaunchError.
func (r *Runner) LaunchScript(ctx context.Context, s run.Stage, d *run.Descriptor, argv []string, failureMarker string) (*Handle, error) {
	// The stage value becomes the log filename token, so an unknown
	// stage would produce a file the aggregator never reads.
	if !s.Valid() {
		return nil, &LaunchError{Stage: s, Err: fmt.Errorf("unknown stage %q", s)}
	}
	if len(argv) == 0 {
		return nil, &LaunchError{Stage: s, Err: fmt.Errorf("empty command")}
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, &LaunchError{Stage: s, Err: err}
	}
	if err := ensureDirs(d.LogDir); err != nil {
		return nil, &LaunchError{Stage: s, Err: err}
	}

	started := time.Now().UTC()
	tailLines := r.TailLines

	return &Handle{
		Stage:     s,
		StartedAt: started,
		wait: func(ctx context.Context) Outcome {
			tail := newTailWriter(tailLines)
			var w io.Writer = tail
			var marker *markerWriter
			if failureMarker != "" {
				marker = newMarkerWriter(failureMarker)
				w = io.MultiWriter(tail, marker)
			}

			code, err := r.Executor.Stream(ctx, w, argv[0], argv[1:]...)
			if err != nil {
				return Outcome{
					Inspectable: false,
					OutputTail:  tail.String(),
					Diagnostic:  fmt.Sprintf("could not determine script outcome: %v", err),
				}
			}

			out := Outcome{ExitCode: code, Inspectable: true}
			if code != 0 {
				out.OutputTail = tail.String()
			}
			if marker != nil {
				if matched, line := marker.Matched(); matched {
					out.MarkerLine = line
					out.OutputTail = tail.String()
				}
			}
			return out
		},
	}, nil
}

// ScriptStep is one command of a multi-script stage.
type ScriptStep struct {
	Argv          []string
	FailureMarker string
}

// LaunchSequence starts a stage made of several scripts run in order.
// The sequence stops at the first step whose outcome is not a clean
// completion; that outcome becomes the stage outcome.
func (r *Runner) LaunchSequence(ctx context.Context, s run.Stage, d *run.Descriptor, steps []ScriptStep) (*Handle, error) {
	if len(steps) == 0 {
		return nil, &LaunchError{Stage: s, Err: fmt.Errorf("no steps")}
	}

	handles := make([]*Handle, 0, len(steps))
	for _, step := range steps {
		h, err := r.LaunchScript(ctx, s, d, step.Argv, step.FailureMarker)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}

	return &Handle{
		Stage:     s,
		StartedAt: handles[0].StartedAt,
		wait: func(ctx context.Context) Outcome {
			var out Outcome
			for _, h := range handles {
				out = h.Wait(ctx)
				if !out.Inspectable || out.ExitCode != 0 || out.MarkerLine != "" {
					return out
				}
			}
			return out
		},
	}, nil
}

func ensureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
