package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rrchai/medrun/internal/run"
	"github.com/rrchai/medrun/internal/shell"
	"github.com/rrchai/medrun/internal/stage"
)

// ExitError carries an exit code through the command surface so main can
// translate it into a process exit status.
type ExitError struct {
	Code int
	Err  error
	// Printed indicates the error has already been reported to the user.
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// handleCLIError prints a user-facing message for known error types and
// wraps everything in an ExitError.
func handleCLIError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Printed && exitErr.Err != nil {
			printError(exitErr.Err)
			exitErr.Printed = true
		}
		return exitErr
	}

	var cfgErr *run.ConfigurationError
	if errors.As(err, &cfgErr) {
		printError(err)
		return &ExitError{Code: 1, Err: err, Printed: true}
	}

	var launchErr *stage.LaunchError
	if errors.As(err, &launchErr) {
		printError(err)
		return &ExitError{Code: 1, Err: err, Printed: true}
	}

	var shellExit *shell.ExitError
	if errors.As(err, &shellExit) {
		printError(err)
		return &ExitError{Code: shell.ExitCode(err), Err: err, Printed: true}
	}

	printError(err)
	return &ExitError{Code: 1, Err: err, Printed: true}
}

func printError(err error) {
	prefix := "Error:"
	if !noColor {
		prefix = color.New(color.FgRed, color.Bold).Sprint("Error:")
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", prefix, err)
}
