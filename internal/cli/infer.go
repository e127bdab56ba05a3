package cli

import (
	"github.com/spf13/cobra"
	"github.com/rrchai/medrun/internal/orchestrator"
	"github.com/rrchai/medrun/internal/shell"
	"github.com/rrchai/medrun/internal/stage"
)

var (
	inferFlags stageFlags
	inferImage string
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Run a submitted model container over the held-out data",
	Long: `Launch the submitted inference container with the held-out data
mounted read-only at /input and the output directory at /output, wait for
it to exit, and record the outcome in the run log.`,
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)
	inferFlags.register(inferCmd)
	inferCmd.Flags().StringVar(&inferImage, "image", "", "container image of the submitted model")
	cobra.CheckErr(inferCmd.MarkFlagRequired("image"))
}

func runInfer(cmd *cobra.Command, args []string) error {
	d, err := inferFlags.descriptor()
	if err != nil {
		return err
	}

	fields, order := inferFlags.bannerFields(d)
	fields["Image"] = inferImage
	printBanner("Model Inference", fields, append(order, "Image"))

	orch := orchestrator.New(GetConfig(), &shell.Local{})

	sp := newSpinner("running inference container...")
	res, err := orch.RunInference(cmd.Context(), d, inferImage)
	stopSpinner(sp)
	if err != nil {
		return err
	}

	printResult(res)
	return exitFor(res)
}

// exitFor converts a non-completed stage result into an ExitError so the
// process exit status mirrors the stage outcome.
func exitFor(res *stage.Result) error {
	if res.Status == stage.StatusCompleted {
		return nil
	}
	code := 1
	if res.Status == stage.StatusUnknown {
		code = orchestrator.UnknownExitSentinel
	} else if res.ExitCode != nil && *res.ExitCode != 0 {
		code = *res.ExitCode
	}
	return &ExitError{Code: code, Printed: true}
}
