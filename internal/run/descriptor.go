// Package run defines the run descriptor identifying one evaluation attempt.
package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Stage identifies one pipeline phase. The values double as the task
// token in per-stage log filenames, so they must stay stable.
type Stage string

// Pipeline stages in execution order.
const (
	StageInference  Stage = "model_inference"
	StageProcessing Stage = "process"
	StageScoring    Stage = "score"
)

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageInference, StageProcessing, StageScoring}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageInference, StageProcessing, StageScoring:
		return true
	}
	return false
}

// ConfigurationError is returned when a descriptor cannot be built from
// the supplied configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// modelSuffix is the known submission filename suffix stripped during
// model name derivation.
const modelSuffix = "_final.zip"

// DescriptorConfig is the raw input for building a Descriptor.
type DescriptorConfig struct {
	// SubmissionID identifies the submission on the platform.
	SubmissionID string

	// Cohort is the evaluation sub-population code (e.g. GLI, MEN, SSA).
	Cohort string

	// InputFile, when set, is the submitted bundle whose basename derives
	// the model name.
	InputFile string

	// InputDir holds the held-out imaging data mounted into the container.
	InputDir string

	// OutputDir receives raw predictions and final results.
	OutputDir string

	// GroundTruthPath points at the gold standard used for scoring.
	GroundTruthPath string

	// LogDir receives the per-stage structured log files.
	LogDir string

	// WorkDir is the scratch root for per-run temp directories.
	WorkDir string
}

// Descriptor identifies one (submission, cohort) evaluation attempt.
// All derived names are computed once at construction and never change,
// so every artifact and log line traces back to the run.
type Descriptor struct {
	RunID           string
	SubmissionID    string
	Cohort          string
	ModelName       string
	InputDir        string
	OutputDir       string
	GroundTruthPath string
	LogDir          string

	workDir string
}

// NewDescriptor validates cfg and derives the canonical run names.
func NewDescriptor(cfg DescriptorConfig) (*Descriptor, error) {
	if cfg.SubmissionID == "" && cfg.InputFile == "" {
		return nil, &ConfigurationError{Field: "submission", Reason: "submission id or input file is required"}
	}
	if cfg.Cohort == "" {
		return nil, &ConfigurationError{Field: "cohort", Reason: "must not be empty"}
	}
	if cfg.InputDir == "" {
		return nil, &ConfigurationError{Field: "input dir", Reason: "must not be empty"}
	}
	if cfg.OutputDir == "" {
		return nil, &ConfigurationError{Field: "output dir", Reason: "must not be empty"}
	}
	if cfg.LogDir == "" {
		return nil, &ConfigurationError{Field: "log dir", Reason: "must not be empty"}
	}

	if err := requireDir(cfg.InputDir, "input dir"); err != nil {
		return nil, err
	}
	if cfg.GroundTruthPath != "" {
		if _, err := os.Stat(cfg.GroundTruthPath); err != nil {
			return nil, &ConfigurationError{Field: "ground truth", Reason: fmt.Sprintf("path does not exist: %s", cfg.GroundTruthPath)}
		}
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	return &Descriptor{
		RunID:           uuid.NewString(),
		SubmissionID:    cfg.SubmissionID,
		Cohort:          cfg.Cohort,
		ModelName:       DeriveModelName(cfg.InputFile, cfg.SubmissionID, cfg.Cohort),
		InputDir:        cfg.InputDir,
		OutputDir:       cfg.OutputDir,
		GroundTruthPath: cfg.GroundTruthPath,
		LogDir:          cfg.LogDir,
		workDir:         workDir,
	}, nil
}

// DeriveModelName computes the canonical model name. When inputFile is
// set its basename wins, with the known submission suffix stripped;
// otherwise the name is submission id and cohort joined.
// The derivation is pure: same inputs always yield the same name.
func DeriveModelName(inputFile, submissionID, cohort string) string {
	if inputFile != "" {
		name := filepath.Base(inputFile)
		if strings.HasSuffix(name, modelSuffix) {
			name = strings.TrimSuffix(name, modelSuffix)
		} else {
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		return sanitizeName(name)
	}
	return sanitizeName(submissionID + "_" + cohort)
}

// sanitizeName substitutes characters unsafe for container names and
// filenames with a fixed placeholder.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// ContainerName returns the container name for the inference stage.
func (d *Descriptor) ContainerName() string {
	return d.ModelName + "_" + sanitizeName(d.Cohort)
}

// TempInputDir is the per-run scratch copy of the original input,
// consumed and removed by the processing stage.
func (d *Descriptor) TempInputDir() string {
	return filepath.Join(d.workDir, d.ContainerName()+"_tmp")
}

// MergedDir is the per-run directory the merge script writes into,
// removed once processing reaches a terminal outcome.
func (d *Descriptor) MergedDir() string {
	return filepath.Join(d.workDir, d.ContainerName()+"_merged")
}

// FinalDir receives the final per-case result files.
func (d *Descriptor) FinalDir() string {
	return filepath.Join(d.OutputDir, d.ContainerName()+"_final")
}

// ArchivePath is the compressed artifact bundle, named after the output
// directory so repeated runs overwrite deterministically.
func (d *Descriptor) ArchivePath() string {
	return filepath.Clean(d.OutputDir) + ".zip"
}

// FinalArchivePath is the compressed bundle of final per-case results,
// the input handed to the scoring workflow.
func (d *Descriptor) FinalArchivePath() string {
	return d.FinalDir() + ".zip"
}

// LogPath returns the structured log file for a stage, following the
// {model}_{stage}.log contract the aggregator parses.
func (d *Descriptor) LogPath(stage Stage) string {
	return filepath.Join(d.LogDir, fmt.Sprintf("%s_%s.log", d.ModelName, stage))
}

func requireDir(path, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("path does not exist: %s", path)}
	}
	if !info.IsDir() {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("not a directory: %s", path)}
	}
	return nil
}
