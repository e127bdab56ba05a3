package cli

import (
	"github.com/spf13/cobra"
	"github.com/rrchai/medrun/internal/orchestrator"
	"github.com/rrchai/medrun/internal/shell"
)

var scoreFlags stageFlags

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score processed predictions against the gold standard",
	Long: `Create a result folder on the platform, upload the processed
prediction archive into it, run the scoring workflow against the gold
standard, and record the outcome in the run log.`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreFlags.register(scoreCmd)
	cobra.CheckErr(scoreCmd.MarkFlagRequired("gold"))
}

func runScore(cmd *cobra.Command, args []string) error {
	d, err := scoreFlags.descriptor()
	if err != nil {
		return err
	}

	fields, order := scoreFlags.bannerFields(d)
	fields["Gold standard"] = d.GroundTruthPath
	printBanner("Scoring", fields, append(order, "Gold standard"))

	orch := orchestrator.New(GetConfig(), &shell.Local{})

	sp := newSpinner("running scoring workflow...")
	res, err := orch.RunScoring(cmd.Context(), d)
	stopSpinner(sp)
	if err != nil {
		return err
	}

	printResult(res)
	return exitFor(res)
}
