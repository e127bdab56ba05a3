// Package shell runs external commands for the pipeline collaborators.
package shell

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// Executor runs external commands. The orchestrator and collaborators
// depend on this interface so tests can substitute a fake.
type Executor interface {
	// Exec runs a command and returns its stdout and stderr output.
	// A non-zero exit is reported as an error wrapping ExitError.
	Exec(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

	// Stream runs a command with combined output copied to w and returns
	// the process exit code. The error is non-nil only when the command
	// could not be started or was interrupted.
	Stream(ctx context.Context, w io.Writer, name string, args ...string) (int, error)
}

// Local runs commands directly on the local machine.
type Local struct{}

// NewLocal creates a new local executor.
func NewLocal() *Local {
	return &Local{}
}

// Exec runs a command and returns its stdout and stderr output.
func (e *Local) Exec(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	command := exec.CommandContext(ctx, name, args...)

	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer
	command.Stdout = &stdoutBuf
	command.Stderr = &stderrBuf

	err := command.Run()
	stdout := stdoutBuf.Bytes()
	stderr := stderrBuf.Bytes()
	if err != nil {
		return stdout, stderr, wrapExecError(err, name, stderr)
	}
	return stdout, stderr, nil
}

// Stream runs a command with combined output copied to w.
func (e *Local) Stream(ctx context.Context, w io.Writer, name string, args ...string) (int, error) {
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = w
	command.Stderr = w

	err := command.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		// The process was killed by the context; the signal exit it
		// leaves behind is not the command's own result.
		return -1, ctxErr
	}
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
