package shell

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExitError represents a non-zero exit code from a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// CommandError wraps a failed command with trimmed stderr context.
type CommandError struct {
	Name   string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func wrapExecError(err error, name string, stderr []byte) error {
	wrapped := err
	if exitErr, ok := err.(*exec.ExitError); ok {
		wrapped = &ExitError{Code: exitErr.ExitCode()}
	}
	return &CommandError{
		Name:   name,
		Stderr: strings.TrimSpace(string(stderr)),
		Err:    wrapped,
	}
}

// ExitCode extracts the exit code from an error chain, or -1 when the
// code cannot be determined.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
