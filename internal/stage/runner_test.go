package stage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rrchai/medrun/internal/config"
	"github.com/rrchai/medrun/internal/container"
	"github.com/rrchai/medrun/internal/run"
	"github.com/rrchai/medrun/internal/testutil/mocks"
)

func testRunner(exec *mocks.Executor) *Runner {
	containers := container.NewClient(exec, config.ContainerConfig{Binary: "docker"})
	return &Runner{
		Executor:   exec,
		Containers: containers,
		TailLines:  20,
		Logger:     zerolog.Nop(),
	}
}

func TestLaunchInference(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetResponse("docker run", []byte("abc123\n"), nil, nil)
	exec.SetResponse("docker wait", []byte("0\n"), nil, nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchInference(context.Background(), d, "docker.synapse.org/syn123/teamA:latest")
	if err != nil {
		t.Fatalf("LaunchInference() error = %v", err)
	}
	if h.Stage != run.StageInference {
		t.Errorf("Stage = %s", h.Stage)
	}

	outcome := h.Wait(context.Background())
	if !outcome.Inspectable || outcome.ExitCode != 0 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if outcome.OutputTail != "" {
		t.Error("clean exit should not capture logs")
	}
}

func TestLaunchInferenceFailureCapturesLogs(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetResponse("docker run", []byte("abc123\n"), nil, nil)
	exec.SetResponse("docker wait", []byte("1\n"), nil, nil)
	exec.SetResponse("docker logs", []byte("Traceback (most recent call last):\n"), []byte("RuntimeError: CUDA out of memory\n"), nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchInference(context.Background(), d, "img")
	if err != nil {
		t.Fatal(err)
	}

	outcome := h.Wait(context.Background())
	if outcome.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", outcome.ExitCode)
	}
	if !strings.Contains(outcome.OutputTail, "CUDA out of memory") {
		t.Errorf("OutputTail = %q", outcome.OutputTail)
	}
}

func TestLaunchInferenceWaitFallsBackToInspect(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetResponse("docker run", []byte("abc123\n"), nil, nil)
	exec.SetResponse("docker wait", nil, nil, errors.New("daemon connection reset"))
	exec.SetResponse("docker inspect", []byte("0\n"), nil, nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchInference(context.Background(), d, "img")
	if err != nil {
		t.Fatal(err)
	}

	outcome := h.Wait(context.Background())
	if !outcome.Inspectable || outcome.ExitCode != 0 {
		t.Errorf("expected inspect fallback to succeed, got %+v", outcome)
	}
}

func TestLaunchInferenceUninspectable(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetResponse("docker run", []byte("abc123\n"), nil, nil)
	exec.SetResponse("docker wait", nil, nil, errors.New("daemon unreachable"))
	exec.SetResponse("docker inspect", nil, nil, errors.New("daemon unreachable"))

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchInference(context.Background(), d, "img")
	if err != nil {
		t.Fatal(err)
	}

	outcome := h.Wait(context.Background())
	if outcome.Inspectable {
		t.Error("expected uninspectable outcome")
	}
	if !strings.Contains(outcome.Diagnostic, "could not determine container outcome") {
		t.Errorf("Diagnostic = %q", outcome.Diagnostic)
	}
}

func TestLaunchInferenceStartFailure(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetResponse("docker run", nil, []byte("no such image"), errors.New("exit status 125"))

	d := testDescriptor(t)
	_, err := testRunner(exec).LaunchInference(context.Background(), d, "nonexistent:latest")
	if err == nil {
		t.Fatal("expected launch error")
	}
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %T", err)
	}
	if launchErr.Stage != run.StageInference {
		t.Errorf("Stage = %s", launchErr.Stage)
	}
}

func TestLaunchScript(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetStreamResponse("sh", "merged 10 cases\n", 0, nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchScript(context.Background(), run.StageProcessing, d, []string{"sh", "merge.sh"}, "")
	if err != nil {
		t.Fatalf("LaunchScript() error = %v", err)
	}

	outcome := h.Wait(context.Background())
	if !outcome.Inspectable || outcome.ExitCode != 0 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestLaunchScriptMissingInterpreter(t *testing.T) {
	d := testDescriptor(t)
	_, err := testRunner(mocks.NewExecutor()).LaunchScript(context.Background(), run.StageProcessing, d,
		[]string{"/nonexistent/python3", "merge.py"}, "")
	if err == nil {
		t.Fatal("expected launch error for missing interpreter")
	}
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %T", err)
	}
}

func TestLaunchScriptUnknownStage(t *testing.T) {
	d := testDescriptor(t)
	_, err := testRunner(mocks.NewExecutor()).LaunchScript(context.Background(), run.Stage("postprocess"), d,
		[]string{"sh", "merge.sh"}, "")
	if err == nil {
		t.Fatal("expected launch error for an unknown stage")
	}
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %T", err)
	}
	if !strings.Contains(err.Error(), "unknown stage") {
		t.Errorf("error = %v", err)
	}
}

func TestLaunchScriptMarkerDetection(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetStreamResponse("sh", "merging case 00042\nError: missing modality t1ce\n", 0, nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchScript(context.Background(), run.StageProcessing, d, []string{"sh", "merge.sh"}, "Error:")
	if err != nil {
		t.Fatal(err)
	}

	outcome := h.Wait(context.Background())
	if outcome.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", outcome.ExitCode)
	}
	if outcome.MarkerLine != "Error: missing modality t1ce" {
		t.Errorf("MarkerLine = %q", outcome.MarkerLine)
	}
	if !strings.Contains(outcome.OutputTail, "merging case 00042") {
		t.Errorf("OutputTail = %q", outcome.OutputTail)
	}
}

func TestLaunchScriptNonZeroExitKeepsTail(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetStreamResponse("sh", "Traceback (most recent call last):\nValueError: bad shape\n", 1, nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchScript(context.Background(), run.StageProcessing, d, []string{"sh", "seg.sh"}, "")
	if err != nil {
		t.Fatal(err)
	}

	outcome := h.Wait(context.Background())
	if outcome.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", outcome.ExitCode)
	}
	if !strings.Contains(outcome.OutputTail, "ValueError: bad shape") {
		t.Errorf("OutputTail = %q", outcome.OutputTail)
	}
}

func TestLaunchSequenceStopsAtFirstFailure(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetStreamResponse("sh merge.sh", "Error: nothing to merge\n", 0, nil)
	exec.SetStreamResponse("sh seg.sh", "refined\n", 0, nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchSequence(context.Background(), run.StageProcessing, d, []ScriptStep{
		{Argv: []string{"sh", "merge.sh"}, FailureMarker: "Error:"},
		{Argv: []string{"sh", "seg.sh"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome := h.Wait(context.Background())
	if outcome.MarkerLine == "" {
		t.Error("expected the merge failure marker to surface")
	}

	for _, cmd := range exec.CommandLines() {
		if strings.Contains(cmd, "seg.sh") {
			t.Error("second step must not run after the first failed")
		}
	}
}

func TestLaunchSequenceRunsAllSteps(t *testing.T) {
	exec := mocks.NewExecutor()
	exec.SetStreamResponse("sh", "ok\n", 0, nil)

	d := testDescriptor(t)
	h, err := testRunner(exec).LaunchSequence(context.Background(), run.StageProcessing, d, []ScriptStep{
		{Argv: []string{"sh", "merge.sh"}, FailureMarker: "Error:"},
		{Argv: []string{"sh", "seg.sh"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome := h.Wait(context.Background())
	if !outcome.Inspectable || outcome.ExitCode != 0 || outcome.MarkerLine != "" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	var ran []string
	for _, cmd := range exec.CommandLines() {
		ran = append(ran, cmd)
	}
	joined := strings.Join(ran, ";")
	if !strings.Contains(joined, "merge.sh") || !strings.Contains(joined, "seg.sh") {
		t.Errorf("expected both steps to run, got %v", ran)
	}
}
