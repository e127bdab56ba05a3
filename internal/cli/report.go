package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/rrchai/medrun/internal/runlog"
)

var (
	reportLogDir  string
	reportCSVPath string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate per-stage run logs into a summary",
	Long: `Scan the log directory for per-stage run logs, merge them into one
summary keyed by model and stage, and print completion counts. With --csv
the summary is also written as a spreadsheet-friendly file.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportLogDir, "log", "l", "", "directory holding the per-stage log files (default from config)")
	reportCmd.Flags().StringVar(&reportCSVPath, "csv", "", "write the summary as CSV to this path")
}

func runReport(cmd *cobra.Command, args []string) error {
	logDir := reportLogDir
	if logDir == "" {
		logDir = GetConfig().Global.LogDir
	}

	summary, err := runlog.Aggregate(logDir)
	if err != nil {
		return err
	}

	printBanner("Run Summary", map[string]string{
		"Log directory": logDir,
	}, []string{"Log directory"})

	if len(summary.Rows) == 0 {
		fmt.Println("no run records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSTAGE\tRUNTIME\tSTATUS\tERROR")
	for _, row := range summary.Rows {
		fmt.Fprintf(w, "%s\t%s\t%ds\t%s\t%s\n",
			row.Model, row.Stage, row.RuntimeSeconds, colorStatus(row.Status), row.Error)
	}
	w.Flush()

	fmt.Println()
	fmt.Printf("submissions: %d total, %d complete, %d failed\n",
		summary.TotalSubmissions, summary.Complete, summary.Failed)
	if summary.Malformed > 0 {
		unknownColor.Printf("skipped %d malformed record(s)\n", summary.Malformed)
	}

	if reportCSVPath != "" {
		f, err := os.Create(reportCSVPath)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer f.Close()
		if err := summary.WriteCSV(f); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		fmt.Printf("wrote %s\n", reportCSVPath)
	}
	return nil
}

func colorStatus(status string) string {
	if noColor {
		return status
	}
	switch status {
	case "Completed":
		return successColor.Sprint(status)
	case "Failed":
		return failureColor.Sprint(status)
	default:
		return unknownColor.Sprint(status)
	}
}
