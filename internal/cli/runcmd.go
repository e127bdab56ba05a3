package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/rrchai/medrun/internal/orchestrator"
	"github.com/rrchai/medrun/internal/shell"
)

var (
	runFlags stageFlags
	runImage string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full inference, processing, and scoring pipeline",
	Long: `Execute all three stages in order for one submission. A later
stage starts only when the previous one completed; a failed or unknown
stage halts the run and its exit code becomes the process exit status.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.register(runCmd)
	runCmd.Flags().StringVar(&runImage, "image", "", "container image of the submitted model")
	cobra.CheckErr(runCmd.MarkFlagRequired("image"))
	cobra.CheckErr(runCmd.MarkFlagRequired("gold"))
}

func runPipeline(cmd *cobra.Command, args []string) error {
	d, err := runFlags.descriptor()
	if err != nil {
		return err
	}

	fields, order := runFlags.bannerFields(d)
	fields["Image"] = runImage
	fields["Gold standard"] = d.GroundTruthPath
	printBanner("Evaluation Pipeline", fields, append(order, "Image", "Gold standard"))

	orch := orchestrator.New(GetConfig(), &shell.Local{})
	orch.OnTransition = func(ev orchestrator.TransitionEvent) {
		logger.Info().
			Str("run_id", ev.RunID).
			Str("from", string(ev.FromState)).
			Str("to", string(ev.ToState)).
			Str("reason", ev.Reason).
			Msg("run state changed")
	}

	outcome, err := orch.Run(cmd.Context(), d, runImage)
	if err != nil {
		return err
	}

	for _, res := range outcome.Results {
		printResult(res)
	}

	switch outcome.State {
	case orchestrator.RunStateSucceeded:
		successColor.Println("Pipeline succeeded")
	default:
		failureColor.Printf("Pipeline failed (exit %d)\n", outcome.ExitCode)
	}
	fmt.Println()

	if outcome.ExitCode != 0 {
		return &ExitError{Code: outcome.ExitCode, Printed: true}
	}
	return nil
}
