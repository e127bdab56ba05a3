package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rrchai/medrun/internal/run"
	"github.com/rrchai/medrun/internal/runlog"
	"github.com/rrchai/medrun/internal/shell"
)

func testMonitor() *Monitor {
	return &Monitor{ArtifactExtension: ".nii.gz", Logger: zerolog.Nop()}
}

func testHandle(s run.Stage, outcome Outcome) *Handle {
	return &Handle{
		Stage:     s,
		StartedAt: time.Now().UTC(),
		wait:      func(ctx context.Context) Outcome { return outcome },
	}
}

func testWriter(t *testing.T, d *run.Descriptor, s run.Stage) *runlog.Writer {
	t.Helper()
	w, err := runlog.NewWriter(d.LogPath(s))
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func readRecords(t *testing.T, path string) []runlog.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	var records []runlog.Record
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		rec, err := runlog.ParseRecord(line)
		if err != nil {
			t.Fatalf("unparsable record %q: %v", line, err)
		}
		records = append(records, rec)
	}
	return records
}

func watchResult(t *testing.T, m *Monitor, d *run.Descriptor, s run.Stage, outcome Outcome) *Result {
	t.Helper()
	res := NewResult(d, s)
	h := testHandle(s, outcome)
	if err := res.MarkRunning(h.StartedAt); err != nil {
		t.Fatal(err)
	}

	log := testWriter(t, d, s)
	select {
	case got := <-m.Watch(context.Background(), d, res, h, log):
		return got
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not deliver a result")
		return nil
	}
}

func TestWatchCleanExit(t *testing.T) {
	d := testDescriptor(t)
	res := watchResult(t, testMonitor(), d, run.StageProcessing, Outcome{ExitCode: 0, Inspectable: true})

	if res.Status != StatusCompleted {
		t.Errorf("Status = %s, want Completed", res.Status)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Error("expected exit code 0")
	}
	if res.ErrorMessage != "" {
		t.Errorf("unexpected error message: %q", res.ErrorMessage)
	}

	records := readRecords(t, d.LogPath(run.StageProcessing))
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	if records[0].Status != "Completed" {
		t.Errorf("recorded status = %q", records[0].Status)
	}
}

func TestWatchNonZeroExit(t *testing.T) {
	d := testDescriptor(t)
	outcome := Outcome{ExitCode: 137, Inspectable: true, OutputTail: "Killed"}
	res := watchResult(t, testMonitor(), d, run.StageInference, outcome)

	if res.Status != StatusFailed {
		t.Errorf("Status = %s, want Failed", res.Status)
	}
	if res.ExitCode == nil || *res.ExitCode != 137 {
		t.Error("expected exit code 137")
	}
	if res.ErrorMessage != "Killed" {
		t.Errorf("ErrorMessage = %q, want diagnostic tail", res.ErrorMessage)
	}

	records := readRecords(t, d.LogPath(run.StageInference))
	if len(records) != 1 || records[0].Status != "Failed" {
		t.Fatalf("expected one Failed record, got %+v", records)
	}
	if records[0].Error != "Killed" {
		t.Errorf("recorded error = %q", records[0].Error)
	}
}

func TestWatchMarkerOverridesCleanExit(t *testing.T) {
	d := testDescriptor(t)
	outcome := Outcome{
		ExitCode:    0,
		Inspectable: true,
		MarkerLine:  "Error: missing modality t1ce",
		OutputTail:  "merging case 00042\nError: missing modality t1ce",
	}
	res := watchResult(t, testMonitor(), d, run.StageProcessing, outcome)

	if res.Status != StatusFailed {
		t.Errorf("Status = %s, want Failed despite exit 0", res.Status)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Error("exit code 0 must still be recorded")
	}
	if !strings.Contains(res.ErrorMessage, "missing modality t1ce") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
}

func TestWatchUninspectableOutcome(t *testing.T) {
	d := testDescriptor(t)
	outcome := Outcome{Inspectable: false, Diagnostic: "could not determine container outcome: daemon unreachable"}
	res := watchResult(t, testMonitor(), d, run.StageInference, outcome)

	if res.Status != StatusUnknown {
		t.Errorf("Status = %s, want Unknown", res.Status)
	}
	if res.ExitCode != nil {
		t.Error("unknown outcome must not carry an exit code")
	}
	if !strings.Contains(res.ErrorMessage, "daemon unreachable") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}

	records := readRecords(t, d.LogPath(run.StageInference))
	if len(records) != 1 || records[0].Status != "Unknown" {
		t.Fatalf("expected one Unknown record, got %+v", records)
	}
}

func TestWatchTimeoutIsUnknown(t *testing.T) {
	d := testDescriptor(t)
	m := testMonitor()
	m.WaitTimeout = 50 * time.Millisecond

	res := NewResult(d, run.StageInference)
	h := &Handle{
		Stage:     run.StageInference,
		StartedAt: time.Now().UTC(),
		wait: func(ctx context.Context) Outcome {
			<-ctx.Done()
			return Outcome{Inspectable: false, Diagnostic: ctx.Err().Error()}
		},
	}
	if err := res.MarkRunning(h.StartedAt); err != nil {
		t.Fatal(err)
	}

	log := testWriter(t, d, run.StageInference)
	select {
	case got := <-m.Watch(context.Background(), d, res, h, log):
		if got.Status != StatusUnknown {
			t.Errorf("Status = %s, want Unknown", got.Status)
		}
		if !strings.Contains(got.ErrorMessage, "timeout") {
			t.Errorf("ErrorMessage = %q, want timeout diagnostic", got.ErrorMessage)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not deliver a result")
	}
}

func TestWatchScriptTimeoutIsUnknown(t *testing.T) {
	d := testDescriptor(t)
	r := &Runner{Executor: shell.NewLocal(), TailLines: 20, Logger: zerolog.Nop()}
	h, err := r.LaunchScript(context.Background(), run.StageProcessing, d, []string{"sleep", "30"}, "")
	if err != nil {
		t.Fatalf("LaunchScript() error = %v", err)
	}

	m := testMonitor()
	m.WaitTimeout = 200 * time.Millisecond

	res := NewResult(d, run.StageProcessing)
	if err := res.MarkRunning(h.StartedAt); err != nil {
		t.Fatal(err)
	}

	log := testWriter(t, d, run.StageProcessing)
	select {
	case got := <-m.Watch(context.Background(), d, res, h, log):
		if got.Status != StatusUnknown {
			t.Errorf("Status = %s, want Unknown for a timed-out script", got.Status)
		}
		if got.ExitCode != nil {
			t.Errorf("ExitCode = %d, want nil", *got.ExitCode)
		}
		if !strings.Contains(got.ErrorMessage, "timeout") {
			t.Errorf("ErrorMessage = %q, want timeout diagnostic", got.ErrorMessage)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("monitor did not deliver a result")
	}

	records := readRecords(t, d.LogPath(run.StageProcessing))
	if len(records) != 1 || records[0].Status != "Unknown" {
		t.Fatalf("expected one Unknown record, got %+v", records)
	}
}

func TestWatchArchivesInferenceArtifacts(t *testing.T) {
	d := testDescriptor(t)
	writeFile(t, filepath.Join(d.OutputDir, "case_001.nii.gz"), "seg")
	writeFile(t, filepath.Join(d.OutputDir, "case_002.nii.gz"), "seg")

	watchResult(t, testMonitor(), d, run.StageInference, Outcome{ExitCode: 0, Inspectable: true})

	if _, err := os.Stat(d.ArchivePath()); err != nil {
		t.Errorf("expected artifact archive at %s: %v", d.ArchivePath(), err)
	}
}

func TestWatchNoArchiveForFailedInference(t *testing.T) {
	d := testDescriptor(t)
	writeFile(t, filepath.Join(d.OutputDir, "case_001.nii.gz"), "seg")

	watchResult(t, testMonitor(), d, run.StageInference, Outcome{ExitCode: 1, Inspectable: true})

	if _, err := os.Stat(d.ArchivePath()); !os.IsNotExist(err) {
		t.Error("failed inference must not produce an archive")
	}
}

func TestWatchNoArchiveForOtherStages(t *testing.T) {
	d := testDescriptor(t)
	writeFile(t, filepath.Join(d.OutputDir, "case_001.nii.gz"), "seg")

	watchResult(t, testMonitor(), d, run.StageScoring, Outcome{ExitCode: 0, Inspectable: true})

	if _, err := os.Stat(d.ArchivePath()); !os.IsNotExist(err) {
		t.Error("archiving is an inference-stage action only")
	}
}
