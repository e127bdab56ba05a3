// Package config handles medrun configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for medrun.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Container runtime settings
	Container ContainerConfig `yaml:"container" mapstructure:"container"`

	// Processing stage settings
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`

	// Scoring stage settings
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`

	// Platform settings for the research-data platform
	Platform PlatformConfig `yaml:"platform" mapstructure:"platform"`

	// Stage execution settings
	Stages StageConfig `yaml:"stages" mapstructure:"stages"`
}

// GlobalConfig contains global medrun settings.
type GlobalConfig struct {
	// DataDir is where medrun stores working data (default: ~/.local/share/medrun).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// LogDir is where per-run log files are written (default: ~/log).
	LogDir string `yaml:"log_dir" mapstructure:"log_dir"`
}

// LoggingConfig contains diagnostic logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ContainerConfig contains container runtime settings.
type ContainerConfig struct {
	// Binary is the container runtime executable.
	Binary string `yaml:"binary" mapstructure:"binary"`

	// CPUs limits container CPU usage (docker --cpus).
	CPUs string `yaml:"cpus" mapstructure:"cpus"`

	// Memory limits container memory usage (docker --memory).
	Memory string `yaml:"memory" mapstructure:"memory"`

	// Network is the container network mode. Submissions must not reach
	// the internet, so the default is none.
	Network string `yaml:"network" mapstructure:"network"`

	// GPUs is the docker --gpus value; empty disables GPU access.
	GPUs string `yaml:"gpus" mapstructure:"gpus"`
}

// ProcessingConfig contains processing stage settings.
type ProcessingConfig struct {
	// MergeScript merges raw predictions into the canonical layout.
	MergeScript string `yaml:"merge_script" mapstructure:"merge_script"`

	// SegmentationScript produces the final per-case result files.
	SegmentationScript string `yaml:"segmentation_script" mapstructure:"segmentation_script"`

	// Interpreter runs the scripts (default: python3).
	Interpreter string `yaml:"interpreter" mapstructure:"interpreter"`
}

// ScoringConfig contains scoring stage settings.
type ScoringConfig struct {
	// Runner is the workflow engine executable (default: cwltool).
	Runner string `yaml:"runner" mapstructure:"runner"`

	// WorkflowFile is the scoring workflow definition.
	WorkflowFile string `yaml:"workflow_file" mapstructure:"workflow_file"`

	// CredentialsFile holds platform credentials for the workflow.
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`

	// Label tags scored results on the platform.
	Label string `yaml:"label" mapstructure:"label"`
}

// PlatformConfig contains research-data platform settings.
type PlatformConfig struct {
	// BaseURL is the platform REST endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// AuthTokenPath is a file containing the platform access token.
	AuthTokenPath string `yaml:"auth_token_path" mapstructure:"auth_token_path"`

	// ParentID is the platform folder results are uploaded under.
	ParentID string `yaml:"parent_id" mapstructure:"parent_id"`

	// CLIBinary is the platform CLI used as a fallback when the REST
	// endpoint is unavailable.
	CLIBinary string `yaml:"cli_binary" mapstructure:"cli_binary"`
}

// StageConfig contains stage execution settings.
type StageConfig struct {
	// WaitTimeout bounds how long a stage may run. Zero means no timeout;
	// on expiry the stage outcome is recorded as unknown.
	WaitTimeout time.Duration `yaml:"wait_timeout" mapstructure:"wait_timeout"`

	// OutputTailLines is how many trailing output lines to keep when a
	// stage fails.
	OutputTailLines int `yaml:"output_tail_lines" mapstructure:"output_tail_lines"`

	// ArtifactExtension identifies expected inference output files.
	ArtifactExtension string `yaml:"artifact_extension" mapstructure:"artifact_extension"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}

	return &Config{
		Global: GlobalConfig{
			DataDir: filepath.Join(home, ".local", "share", "medrun"),
			LogDir:  filepath.Join(home, "log"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Container: ContainerConfig{
			Binary:  "docker",
			Network: "none",
		},
		Processing: ProcessingConfig{
			Interpreter: "python3",
		},
		Scoring: ScoringConfig{
			Runner: "cwltool",
		},
		Platform: PlatformConfig{
			BaseURL:   "https://repo-prod.prod.sagebase.org/repo/v1",
			CLIBinary: "synapse",
		},
		Stages: StageConfig{
			OutputTailLines:   20,
			ArtifactExtension: ".nii.gz",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Global.DataDir == "" {
		return fmt.Errorf("global.data_dir is required")
	}
	if c.Global.LogDir == "" {
		return fmt.Errorf("global.log_dir is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console (got %q)", c.Logging.Format)
	}

	if c.Container.Binary == "" {
		return fmt.Errorf("container.binary is required")
	}
	if c.Stages.OutputTailLines <= 0 {
		return fmt.Errorf("stages.output_tail_lines must be positive")
	}
	if c.Stages.WaitTimeout < 0 {
		return fmt.Errorf("stages.wait_timeout must not be negative")
	}
	if c.Stages.ArtifactExtension == "" {
		return fmt.Errorf("stages.artifact_extension is required")
	}

	return nil
}

// EnsureDirectories creates the data and log directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
