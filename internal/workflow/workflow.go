// Package workflow prepares scoring workflow-engine invocations.
package workflow

import (
	"fmt"
	"os"

	"github.com/rrchai/medrun/internal/config"
)

// Params are the named parameters of the scoring workflow.
type Params struct {
	// FolderID is the platform folder receiving scored results.
	FolderID string

	// InputFile is the processed submission archive to score.
	InputFile string

	// GoldStandard is the ground-truth reference file.
	GoldStandard string

	// Label tags the scored results.
	Label string
}

// BuildArgs assembles the workflow-engine command line. The engine's
// internal behavior is opaque; its exit code is the verdict.
func BuildArgs(cfg config.ScoringConfig, p Params) ([]string, error) {
	if cfg.WorkflowFile == "" {
		return nil, fmt.Errorf("scoring workflow file is required")
	}
	if _, err := os.Stat(cfg.WorkflowFile); err != nil {
		return nil, fmt.Errorf("scoring workflow file missing: %w", err)
	}
	if p.FolderID == "" {
		return nil, fmt.Errorf("platform folder id is required")
	}
	if p.InputFile == "" {
		return nil, fmt.Errorf("input file is required")
	}
	if p.GoldStandard == "" {
		return nil, fmt.Errorf("gold standard file is required")
	}

	runner := cfg.Runner
	if runner == "" {
		runner = "cwltool"
	}

	args := []string{
		runner,
		cfg.WorkflowFile,
		"--parent_id", p.FolderID,
		"--input_file", p.InputFile,
		"--goldstandard", p.GoldStandard,
	}
	if cfg.CredentialsFile != "" {
		args = append(args, "--synapse_config", cfg.CredentialsFile)
	}
	label := p.Label
	if label == "" {
		label = cfg.Label
	}
	if label != "" {
		args = append(args, "--label", label)
	}

	return args, nil
}
