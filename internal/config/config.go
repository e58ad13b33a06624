// Package config handles buckperf configuration loading and validation.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure for buckperf.
type Config struct {
	// Test holds the benchmark run parameters.
	Test PerfTestConfig `yaml:"test" mapstructure:"test"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Results settings for the optional SQLite results store.
	Results ResultsConfig `yaml:"results" mapstructure:"results"`
}

// PerfTestConfig is the full set of run parameters. It is constructed once
// at startup, validated, and passed by pointer to every component; nothing
// mutates it afterwards.
type PerfTestConfig struct {
	// PerfTestID identifies this performance test for telemetry.
	PerfTestID string `yaml:"perftest_id" mapstructure:"perftest_id"`

	// RevisionsToGoBack is the maximum number of revisions to test.
	RevisionsToGoBack int `yaml:"revisions_to_go_back" mapstructure:"revisions_to_go_back"`

	// IterationsPerDiff is the number of build iterations per tested revision.
	IterationsPerDiff int `yaml:"iterations_per_diff" mapstructure:"iterations_per_diff"`

	// TargetsToBuild are the build target specs. Each entry may contain
	// multiple comma-separated targets.
	TargetsToBuild []string `yaml:"targets_to_build" mapstructure:"targets_to_build"`

	// RepoUnderTest is the path to the repository being tested.
	RepoUnderTest string `yaml:"repo_under_test" mapstructure:"repo_under_test"`

	// ProjectUnderTest is the project folder being tested, relative to the repo.
	ProjectUnderTest string `yaml:"project_under_test" mapstructure:"project_under_test"`

	// PathToBuck is the path to the buck binary.
	PathToBuck string `yaml:"path_to_buck" mapstructure:"path_to_buck"`

	// OldBuckRevision pins the "old" side of the comparison.
	OldBuckRevision string `yaml:"old_buck_revision" mapstructure:"old_buck_revision"`

	// NewBuckRevision pins the "new" side of the comparison.
	NewBuckRevision string `yaml:"new_buck_revision" mapstructure:"new_buck_revision"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`
}

// ResultsConfig contains results store settings.
type ResultsConfig struct {
	// Path is the SQLite database file to record build results into.
	// Empty disables recording.
	Path string `yaml:"path" mapstructure:"path"`
}

// DefaultConfig returns the default configuration. Run parameters have no
// defaults; every one of them is required.
func DefaultConfig() *Config {
	return &Config{
		Test: PerfTestConfig{
			IterationsPerDiff: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Targets returns the flattened list of build targets, splitting any
// comma-separated target specs.
func (c *PerfTestConfig) Targets() []string {
	var targets []string
	for _, spec := range c.TargetsToBuild {
		for _, target := range strings.Split(spec, ",") {
			if target = strings.TrimSpace(target); target != "" {
				targets = append(targets, target)
			}
		}
	}
	return targets
}

// Validate checks that every required run parameter is present. It runs
// before any child process is spawned so a misconfigured run fails fast.
func (c *PerfTestConfig) Validate() error {
	var missing []string
	if c.PerfTestID == "" {
		missing = append(missing, "perftest_id")
	}
	if c.RevisionsToGoBack <= 0 {
		missing = append(missing, "revisions_to_go_back")
	}
	if c.IterationsPerDiff <= 0 {
		missing = append(missing, "iterations_per_diff")
	}
	if len(c.Targets()) == 0 {
		missing = append(missing, "targets_to_build")
	}
	if c.RepoUnderTest == "" {
		missing = append(missing, "repo_under_test")
	}
	if c.ProjectUnderTest == "" {
		missing = append(missing, "project_under_test")
	}
	if c.PathToBuck == "" {
		missing = append(missing, "path_to_buck")
	}
	if c.OldBuckRevision == "" {
		missing = append(missing, "old_buck_revision")
	}
	if c.NewBuckRevision == "" {
		missing = append(missing, "new_buck_revision")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}
