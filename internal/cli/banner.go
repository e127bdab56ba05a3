package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rrchai/medrun/internal/stage"
)

var (
	titleColor   = color.New(color.FgHiCyan, color.Bold)
	labelColor   = color.New(color.FgHiBlack)
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	unknownColor = color.New(color.FgYellow, color.Bold)
)

// printBanner prints a stage header with the run identifiers.
func printBanner(title string, fields map[string]string, order []string) {
	if noColor {
		color.NoColor = true
	}
	fmt.Println()
	titleColor.Printf("━━━ %s ━━━\n", title)
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			continue
		}
		labelColor.Printf("  %-14s", k+":")
		fmt.Println(v)
	}
	fmt.Println()
}

// printResult prints the terminal outcome of a stage.
func printResult(res *stage.Result) {
	var c *color.Color
	switch res.Status {
	case stage.StatusCompleted:
		c = successColor
	case stage.StatusUnknown:
		c = unknownColor
	default:
		c = failureColor
	}

	fmt.Println()
	c.Printf("  %s", res.Status)
	fmt.Printf("  stage=%s model=%s runtime=%s\n", res.Stage, res.Model, formatRuntime(res.Runtime))
	if res.ErrorMessage != "" {
		failureColor.Print("  error: ")
		fmt.Println(res.ErrorMessage)
	}
	fmt.Println()
}

func formatRuntime(d time.Duration) string {
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

// newSpinner returns a started spinner with the given suffix, or nil when
// colored output is disabled or stdout is not a terminal.
func newSpinner(suffix string) *spinner.Spinner {
	if noColor {
		return nil
	}
	fi, err := os.Stdout.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	s.Suffix = " " + suffix
	_ = s.Color("cyan")
	s.Start()
	return s
}

func stopSpinner(s *spinner.Spinner) {
	if s != nil {
		s.Stop()
	}
}
