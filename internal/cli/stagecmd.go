package cli

import (
	"github.com/spf13/cobra"
	"github.com/rrchai/medrun/internal/run"
)

// stageFlags holds the run identity flags shared by the stage commands.
type stageFlags struct {
	submissionID string
	cohort       string
	inputFile    string
	inputDir     string
	outputDir    string
	goldStandard string
	logDir       string
	workDir      string
}

func (f *stageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.submissionID, "submission", "s", "", "submission identifier")
	cmd.Flags().StringVarP(&f.cohort, "cohort", "c", "", "cohort code (e.g. GLI, MEN, SSA)")
	cmd.Flags().StringVarP(&f.inputFile, "input-file", "f", "", "submitted bundle; its basename derives the model name")
	cmd.Flags().StringVarP(&f.inputDir, "input", "i", "", "directory holding the held-out imaging data")
	cmd.Flags().StringVarP(&f.outputDir, "output", "o", "", "directory receiving predictions and results")
	cmd.Flags().StringVarP(&f.goldStandard, "gold", "g", "", "gold standard file for scoring")
	cmd.Flags().StringVarP(&f.logDir, "log", "l", "", "directory for per-stage log files (default from config)")
	cmd.Flags().StringVar(&f.workDir, "work", "", "scratch root for temporary directories (default from config)")

	cobra.CheckErr(cmd.MarkFlagRequired("cohort"))
	cobra.CheckErr(cmd.MarkFlagRequired("input"))
	cobra.CheckErr(cmd.MarkFlagRequired("output"))
}

// descriptor builds a validated run descriptor, filling directory
// defaults from the loaded config.
func (f *stageFlags) descriptor() (*run.Descriptor, error) {
	cfg := GetConfig()

	logDir := f.logDir
	if logDir == "" {
		logDir = cfg.Global.LogDir
	}
	workDir := f.workDir
	if workDir == "" {
		workDir = cfg.Global.DataDir
	}

	return run.NewDescriptor(run.DescriptorConfig{
		SubmissionID:    f.submissionID,
		Cohort:          f.cohort,
		InputFile:       f.inputFile,
		InputDir:        f.inputDir,
		OutputDir:       f.outputDir,
		GroundTruthPath: f.goldStandard,
		LogDir:          logDir,
		WorkDir:         workDir,
	})
}

func (f *stageFlags) bannerFields(d *run.Descriptor) (map[string]string, []string) {
	fields := map[string]string{
		"Run ID":     d.RunID,
		"Model":      d.ModelName,
		"Cohort":     d.Cohort,
		"Submission": d.SubmissionID,
		"Input":      d.InputDir,
		"Output":     d.OutputDir,
	}
	order := []string{"Run ID", "Model", "Cohort", "Submission", "Input", "Output"}
	return fields, order
}
