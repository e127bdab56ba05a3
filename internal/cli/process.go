package cli

import (
	"github.com/spf13/cobra"
	"github.com/rrchai/medrun/internal/orchestrator"
	"github.com/rrchai/medrun/internal/shell"
)

var processFlags stageFlags

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Merge and post-process raw predictions",
	Long: `Copy the raw predictions into a scratch directory, run the merge
script and then the segmentation refinement script over them, archive the
final predictions, and record the outcome in the run log. Scratch
directories are removed whether or not the scripts succeed.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processFlags.register(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	d, err := processFlags.descriptor()
	if err != nil {
		return err
	}

	fields, order := processFlags.bannerFields(d)
	printBanner("Post-Processing", fields, order)

	orch := orchestrator.New(GetConfig(), &shell.Local{})

	sp := newSpinner("running processing scripts...")
	res, err := orch.RunProcessing(cmd.Context(), d)
	stopSpinner(sp)
	if err != nil {
		return err
	}

	printResult(res)
	return exitFor(res)
}
