package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rrchai/medrun/internal/config"
	"github.com/rrchai/medrun/internal/container"
	"github.com/rrchai/medrun/internal/logging"
	"github.com/rrchai/medrun/internal/platform"
	"github.com/rrchai/medrun/internal/run"
	"github.com/rrchai/medrun/internal/runlog"
	"github.com/rrchai/medrun/internal/shell"
	"github.com/rrchai/medrun/internal/stage"
	"github.com/rrchai/medrun/internal/workflow"
)

// UnknownExitSentinel is propagated when a stage outcome could not be
// inspected and no exit code exists.
const UnknownExitSentinel = 255

// mergeFailureMarker overrides the merge script's exit code; the
// script's own exit status is known to be unreliable. The segmentation
// script's exit code is trusted as-is (deliberate asymmetry).
const mergeFailureMarker = "Error:"

// Outcome aggregates one run's stage results and final state.
type Outcome struct {
	RunID    string
	State    RunState
	ExitCode int
	Results  []*stage.Result
}

// Orchestrator sequences stages for runs. Instances for different runs
// may execute fully in parallel; they share only the log directory.
type Orchestrator struct {
	Config   *config.Config
	Runner   *stage.Runner
	Monitor  *stage.Monitor
	Platform *platform.Client
	Logger   zerolog.Logger

	// OnTransition, when set, observes every run state transition.
	OnTransition TransitionCallback
}

// New wires an orchestrator over the given executor.
func New(cfg *config.Config, executor shell.Executor) *Orchestrator {
	containers := container.NewClient(executor, cfg.Container)
	return &Orchestrator{
		Config:   cfg,
		Runner:   stage.NewRunner(executor, containers, cfg.Stages),
		Monitor:  stage.NewMonitor(cfg.Stages),
		Platform: platform.NewClient(cfg.Platform, executor),
		Logger:   logging.Component("orchestrator"),
	}
}

// Run executes the full three-stage pipeline for one descriptor. Stage
// N+1 starts only when stage N completed; a failed or unknown stage
// halts the run and its exit code becomes the run's exit code.
func (o *Orchestrator) Run(ctx context.Context, d *run.Descriptor, image string) (*Outcome, error) {
	machine := NewMachine(d.RunID)
	if o.OnTransition != nil {
		machine.OnTransition(o.OnTransition)
	}
	out := &Outcome{RunID: d.RunID, State: RunStateIdle}

	type stageFunc func(context.Context) (*stage.Result, error)
	steps := []struct {
		state  RunState
		reason string
		fn     stageFunc
	}{
		{RunStateInferenceRunning, "pipeline started", func(ctx context.Context) (*stage.Result, error) {
			return o.RunInference(ctx, d, image)
		}},
		{RunStateProcessingRunning, "inference completed", func(ctx context.Context) (*stage.Result, error) {
			return o.RunProcessing(ctx, d)
		}},
		{RunStateScoringRunning, "processing completed", func(ctx context.Context) (*stage.Result, error) {
			return o.RunScoring(ctx, d)
		}},
	}

	for _, step := range steps {
		if err := machine.Transition(step.state, step.reason); err != nil {
			return out, err
		}
		out.State = machine.State()

		res, err := step.fn(ctx)
		if res != nil {
			out.Results = append(out.Results, res)
		}
		if err != nil {
			_ = machine.Transition(RunStateFailed, err.Error())
			out.State = RunStateFailed
			out.ExitCode = 1
			return out, err
		}
		if res.Status != stage.StatusCompleted {
			reason := fmt.Sprintf("stage %s terminated with status %s", res.Stage, res.Status)
			_ = machine.Transition(RunStateFailed, reason)
			out.State = RunStateFailed
			out.ExitCode = exitCodeFor(res)
			return out, nil
		}
	}

	if err := machine.Transition(RunStateSucceeded, "scoring completed"); err != nil {
		return out, err
	}
	out.State = RunStateSucceeded
	out.ExitCode = 0
	return out, nil
}

// RunInference launches the submitted model container and waits for its
// terminal result.
func (o *Orchestrator) RunInference(ctx context.Context, d *run.Descriptor, image string) (*stage.Result, error) {
	if image == "" {
		return nil, &stage.LaunchError{Stage: run.StageInference, Err: fmt.Errorf("image reference is required")}
	}

	log, err := runlog.NewWriter(d.LogPath(run.StageInference))
	if err != nil {
		return nil, err
	}

	res := stage.NewResult(d, run.StageInference)
	h, err := o.Runner.LaunchInference(ctx, d, image)
	if err != nil {
		return nil, err
	}
	if err := res.MarkRunning(h.StartedAt); err != nil {
		return nil, err
	}

	return <-o.Monitor.Watch(ctx, d, res, h, log), nil
}

// RunProcessing merges raw predictions and produces final per-case
// result files. The per-run temp input copy and merged directory are
// removed once the outcome is known, on success and failure alike.
func (o *Orchestrator) RunProcessing(ctx context.Context, d *run.Descriptor) (*stage.Result, error) {
	procCfg := o.Config.Processing
	if procCfg.MergeScript == "" || procCfg.SegmentationScript == "" {
		return nil, &stage.LaunchError{Stage: run.StageProcessing, Err: fmt.Errorf("merge and segmentation scripts are required")}
	}

	log, err := runlog.NewWriter(d.LogPath(run.StageProcessing))
	if err != nil {
		return nil, err
	}

	tempInput := d.TempInputDir()
	merged := d.MergedDir()
	defer func() {
		// Unconditional cleanup keeps repeated runs from accumulating
		// scratch directories.
		if err := os.RemoveAll(tempInput); err != nil {
			o.Logger.Warn().Err(err).Str("dir", tempInput).Msg("failed to remove temp input copy")
		}
		if err := os.RemoveAll(merged); err != nil {
			o.Logger.Warn().Err(err).Str("dir", merged).Msg("failed to remove merged directory")
		}
	}()

	if err := copyDir(d.InputDir, tempInput); err != nil {
		return nil, &stage.LaunchError{Stage: run.StageProcessing, Err: err}
	}

	interpreter := procCfg.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	steps := []stage.ScriptStep{
		{
			Argv:          []string{interpreter, procCfg.MergeScript, tempInput, d.OutputDir, merged},
			FailureMarker: mergeFailureMarker,
		},
		{
			Argv: []string{interpreter, procCfg.SegmentationScript, merged, d.FinalDir()},
		},
	}

	res := stage.NewResult(d, run.StageProcessing)
	h, err := o.Runner.LaunchSequence(ctx, run.StageProcessing, d, steps)
	if err != nil {
		return nil, err
	}
	if err := res.MarkRunning(h.StartedAt); err != nil {
		return nil, err
	}

	res = <-o.Monitor.Watch(ctx, d, res, h, log)

	if res.Status == stage.StatusCompleted {
		count, path, err := stage.ZipArtifacts(d.FinalDir(), d.FinalArchivePath(), o.Config.Stages.ArtifactExtension)
		switch {
		case err != nil:
			o.Logger.Warn().Err(err).Str("model", d.ModelName).Msg("failed to bundle final results")
		case count == 0:
			o.Logger.Info().Str("model", d.ModelName).Str("dir", d.FinalDir()).Msg("no final result files found")
		default:
			o.Logger.Info().Str("model", d.ModelName).Int("files", count).Str("archive", path).Msg("final results bundled")
		}
	}

	return res, nil
}

// RunScoring publishes the processed submission to the platform and runs
// the scoring workflow against the gold standard.
func (o *Orchestrator) RunScoring(ctx context.Context, d *run.Descriptor) (*stage.Result, error) {
	if d.GroundTruthPath == "" {
		return nil, &stage.LaunchError{Stage: run.StageScoring, Err: fmt.Errorf("ground truth path is required")}
	}

	log, err := runlog.NewWriter(d.LogPath(run.StageScoring))
	if err != nil {
		return nil, err
	}

	folderID, err := o.Platform.CreateFolder(ctx, d.ModelName, o.Config.Platform.ParentID)
	if err != nil {
		return nil, &stage.LaunchError{Stage: run.StageScoring, Err: err}
	}

	inputFile := d.FinalArchivePath()
	if err := o.Platform.UploadFile(ctx, inputFile, folderID); err != nil {
		return nil, &stage.LaunchError{Stage: run.StageScoring, Err: err}
	}

	args, err := workflow.BuildArgs(o.Config.Scoring, workflow.Params{
		FolderID:     folderID,
		InputFile:    inputFile,
		GoldStandard: d.GroundTruthPath,
	})
	if err != nil {
		return nil, &stage.LaunchError{Stage: run.StageScoring, Err: err}
	}

	res := stage.NewResult(d, run.StageScoring)
	h, err := o.Runner.LaunchScript(ctx, run.StageScoring, d, args, "")
	if err != nil {
		return nil, err
	}
	if err := res.MarkRunning(h.StartedAt); err != nil {
		return nil, err
	}

	return <-o.Monitor.Watch(ctx, d, res, h, log), nil
}

// exitCodeFor maps a non-completed stage result to the orchestrator's
// exit signal.
func exitCodeFor(res *stage.Result) int {
	if res.Status == stage.StatusUnknown {
		return UnknownExitSentinel
	}
	if res.ExitCode != nil && *res.ExitCode != 0 {
		return *res.ExitCode
	}
	return 1
}
