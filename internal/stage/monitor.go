package stage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rrchai/medrun/internal/config"
	"github.com/rrchai/medrun/internal/logging"
	"github.com/rrchai/medrun/internal/run"
	"github.com/rrchai/medrun/internal/runlog"
)

// Monitor waits for started units of work, classifies their outcome,
// runs post-completion actions, and writes the durable log record.
type Monitor struct {
	// WaitTimeout bounds the wait; zero means wait forever. On expiry
	// the outcome is recorded as Unknown.
	WaitTimeout time.Duration

	// ArtifactExtension identifies expected inference output files.
	ArtifactExtension string

	Logger zerolog.Logger
}

// NewMonitor creates a Monitor from stage configuration.
func NewMonitor(cfg config.StageConfig) *Monitor {
	return &Monitor{
		WaitTimeout:       cfg.WaitTimeout,
		ArtifactExtension: cfg.ArtifactExtension,
		Logger:            logging.Component("monitor"),
	}
}

// Watch waits for h in a dedicated goroutine and delivers the finished
// result exactly once on the returned channel. The result reaches a
// terminal status and produces exactly one log record regardless of the
// classification branch taken.
func (m *Monitor) Watch(ctx context.Context, d *run.Descriptor, res *Result, h *Handle, log *runlog.Writer) <-chan *Result {
	done := make(chan *Result, 1)

	go func() {
		defer close(done)

		waitCtx := ctx
		var cancel context.CancelFunc
		if m.WaitTimeout > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, m.WaitTimeout)
			defer cancel()
		}

		outcome := h.Wait(waitCtx)
		finishedAt := time.Now().UTC()

		status, exitCode, errMsg := m.classify(waitCtx, outcome)
		if err := res.Finish(status, exitCode, errMsg, finishedAt); err != nil {
			// A finished result never transitions again.
			m.Logger.Error().Err(err).Str("stage", string(h.Stage)).Msg("result already terminal")
			done <- res
			return
		}

		if res.Status == StatusCompleted && h.Stage == run.StageInference {
			m.archiveArtifacts(d)
		}

		m.writeRecord(d, res, log)
		done <- res
	}()

	return done
}

func (m *Monitor) classify(ctx context.Context, outcome Outcome) (Status, *int, string) {
	if !outcome.Inspectable {
		diag := outcome.Diagnostic
		if ctx.Err() == context.DeadlineExceeded {
			diag = "stage wait timeout exceeded before completion"
		}
		if diag == "" {
			diag = "could not determine outcome of the unit of work"
		}
		return StatusUnknown, nil, diag
	}

	code := outcome.ExitCode
	if outcome.MarkerLine != "" {
		// The merge script's own exit code is unreliable; the marker wins.
		msg := outcome.OutputTail
		if msg == "" {
			msg = outcome.MarkerLine
		}
		return StatusFailed, &code, msg
	}
	if code == 0 {
		return StatusCompleted, &code, ""
	}
	return StatusFailed, &code, outcome.OutputTail
}

func (m *Monitor) archiveArtifacts(d *run.Descriptor) {
	count, path, err := ZipArtifacts(d.OutputDir, d.ArchivePath(), m.ArtifactExtension)
	switch {
	case err != nil:
		m.Logger.Warn().Err(err).Str("model", d.ModelName).Msg("failed to archive artifacts")
	case count == 0:
		m.Logger.Info().Str("model", d.ModelName).Str("dir", d.OutputDir).Msg("no artifacts found")
	default:
		m.Logger.Info().Str("model", d.ModelName).Int("files", count).Str("archive", path).Msg("artifacts archived")
	}
}

// writeRecord performs the single durable log write for a terminal
// result. Write failures are reported to the diagnostic channel and
// never abort the run.
func (m *Monitor) writeRecord(d *run.Descriptor, res *Result, log *runlog.Writer) {
	rec := runlog.Record{
		Model:          res.Model,
		Stage:          string(res.Stage),
		Cohort:         res.Cohort,
		Start:          res.StartTime,
		RuntimeSeconds: int(res.Runtime.Seconds()),
		Status:         string(res.Status),
		Error:          res.ErrorMessage,
	}
	if err := log.Append(rec); err != nil {
		m.Logger.Error().Err(err).
			Str("model", res.Model).
			Str("stage", string(res.Stage)).
			Msg("failed to write run log record")
	}
}
