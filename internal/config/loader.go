package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.LogDir = expandTilde(cfg.Global.LogDir)
	cfg.Processing.MergeScript = expandTilde(cfg.Processing.MergeScript)
	cfg.Processing.SegmentationScript = expandTilde(cfg.Processing.SegmentationScript)
	cfg.Scoring.WorkflowFile = expandTilde(cfg.Scoring.WorkflowFile)
	cfg.Scoring.CredentialsFile = expandTilde(cfg.Scoring.CredentialsFile)
	cfg.Platform.AuthTokenPath = expandTilde(cfg.Platform.AuthTokenPath)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "medrun"))
	}

	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "medrun"))
	}

	v.AddConfigPath(".")

	v.SetEnvPrefix("MEDRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l.setDefaults(cfg)
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	// Global
	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("global.log_dir", cfg.Global.LogDir)

	// Logging
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	// Container
	v.SetDefault("container.binary", cfg.Container.Binary)
	v.SetDefault("container.cpus", cfg.Container.CPUs)
	v.SetDefault("container.memory", cfg.Container.Memory)
	v.SetDefault("container.network", cfg.Container.Network)
	v.SetDefault("container.gpus", cfg.Container.GPUs)

	// Processing
	v.SetDefault("processing.merge_script", cfg.Processing.MergeScript)
	v.SetDefault("processing.segmentation_script", cfg.Processing.SegmentationScript)
	v.SetDefault("processing.interpreter", cfg.Processing.Interpreter)

	// Scoring
	v.SetDefault("scoring.runner", cfg.Scoring.Runner)
	v.SetDefault("scoring.workflow_file", cfg.Scoring.WorkflowFile)
	v.SetDefault("scoring.credentials_file", cfg.Scoring.CredentialsFile)
	v.SetDefault("scoring.label", cfg.Scoring.Label)

	// Platform
	v.SetDefault("platform.base_url", cfg.Platform.BaseURL)
	v.SetDefault("platform.auth_token_path", cfg.Platform.AuthTokenPath)
	v.SetDefault("platform.parent_id", cfg.Platform.ParentID)
	v.SetDefault("platform.cli_binary", cfg.Platform.CLIBinary)

	// Stages
	v.SetDefault("stages.wait_timeout", cfg.Stages.WaitTimeout)
	v.SetDefault("stages.output_tail_lines", cfg.Stages.OutputTailLines)
	v.SetDefault("stages.artifact_extension", cfg.Stages.ArtifactExtension)
}

// loadConfigFile attempts to load the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}
