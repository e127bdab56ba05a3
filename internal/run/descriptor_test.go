package run

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) DescriptorConfig {
	t.Helper()
	return DescriptorConfig{
		SubmissionID: "9714904",
		Cohort:       "GLI",
		InputDir:     t.TempDir(),
		OutputDir:    filepath.Join(t.TempDir(), "predictions"),
		LogDir:       t.TempDir(),
		WorkDir:      t.TempDir(),
	}
}

func TestDeriveModelName(t *testing.T) {
	tests := []struct {
		name         string
		inputFile    string
		submissionID string
		cohort       string
		want         string
	}{
		{"bundle with suffix", "/uploads/teamA_001_final.zip", "9714904", "GLI", "teamA_001"},
		{"bundle without suffix", "/uploads/teamB.tar", "9714904", "GLI", "teamB"},
		{"no input file", "", "9714904", "GLI", "9714904_GLI"},
		{"unsafe characters replaced", "/uploads/team A+B_final.zip", "", "GLI", "team-A-B"},
		{"basename only", "relative/team_C_final.zip", "", "MEN", "team_C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveModelName(tt.inputFile, tt.submissionID, tt.cohort)
			if got != tt.want {
				t.Errorf("DeriveModelName(%q, %q, %q) = %q, want %q",
					tt.inputFile, tt.submissionID, tt.cohort, got, tt.want)
			}
		})
	}
}

func TestDeriveModelNameIsPure(t *testing.T) {
	first := DeriveModelName("teamA_001_final.zip", "9714904", "GLI")
	second := DeriveModelName("teamA_001_final.zip", "9714904", "GLI")
	if first != second {
		t.Errorf("derivation not deterministic: %q != %q", first, second)
	}
}

func TestNewDescriptorDerivedPaths(t *testing.T) {
	cfg := validConfig(t)
	cfg.InputFile = "/uploads/teamA_001_final.zip"

	d, err := NewDescriptor(cfg)
	if err != nil {
		t.Fatalf("NewDescriptor() error = %v", err)
	}

	if d.RunID == "" {
		t.Error("expected a run id")
	}
	if d.ModelName != "teamA_001" {
		t.Errorf("ModelName = %q, want teamA_001", d.ModelName)
	}
	if got := d.ContainerName(); got != "teamA_001_GLI" {
		t.Errorf("ContainerName() = %q, want teamA_001_GLI", got)
	}
	if got := d.LogPath(StageInference); got != filepath.Join(cfg.LogDir, "teamA_001_model_inference.log") {
		t.Errorf("LogPath() = %q", got)
	}
	if got := d.FinalDir(); got != filepath.Join(cfg.OutputDir, "teamA_001_GLI_final") {
		t.Errorf("FinalDir() = %q", got)
	}
	if got := d.FinalArchivePath(); got != d.FinalDir()+".zip" {
		t.Errorf("FinalArchivePath() = %q", got)
	}
	if got := d.ArchivePath(); got != filepath.Clean(cfg.OutputDir)+".zip" {
		t.Errorf("ArchivePath() = %q", got)
	}
	if !strings.HasSuffix(d.TempInputDir(), "teamA_001_GLI_tmp") {
		t.Errorf("TempInputDir() = %q", d.TempInputDir())
	}
	if !strings.HasSuffix(d.MergedDir(), "teamA_001_GLI_merged") {
		t.Errorf("MergedDir() = %q", d.MergedDir())
	}
}

func TestNewDescriptorUniqueRunIDs(t *testing.T) {
	cfg := validConfig(t)
	first, err := NewDescriptor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewDescriptor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if first.RunID == second.RunID {
		t.Error("expected distinct run ids for repeated construction")
	}
}

func TestNewDescriptorValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DescriptorConfig)
		field  string
	}{
		{"missing identity", func(c *DescriptorConfig) { c.SubmissionID = ""; c.InputFile = "" }, "submission"},
		{"missing cohort", func(c *DescriptorConfig) { c.Cohort = "" }, "cohort"},
		{"missing input dir", func(c *DescriptorConfig) { c.InputDir = "" }, "input dir"},
		{"missing output dir", func(c *DescriptorConfig) { c.OutputDir = "" }, "output dir"},
		{"missing log dir", func(c *DescriptorConfig) { c.LogDir = "" }, "log dir"},
		{"input dir does not exist", func(c *DescriptorConfig) { c.InputDir = "/nonexistent/input" }, "input dir"},
		{"ground truth does not exist", func(c *DescriptorConfig) { c.GroundTruthPath = "/nonexistent/gold.zip" }, "ground truth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			_, err := NewDescriptor(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestStageValid(t *testing.T) {
	for _, s := range Stages() {
		if !s.Valid() {
			t.Errorf("stage %q should be valid", s)
		}
	}
	if Stage("deploy").Valid() {
		t.Error("unexpected valid stage")
	}
}
