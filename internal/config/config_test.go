package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func validTestConfig() PerfTestConfig {
	return PerfTestConfig{
		PerfTestID:        "perf-1",
		RevisionsToGoBack: 5,
		IterationsPerDiff: 2,
		TargetsToBuild:    []string{"//app:bin"},
		RepoUnderTest:     "/work/repo",
		ProjectUnderTest:  "project",
		PathToBuck:        "/usr/bin/buck",
		OldBuckRevision:   "old-rev",
		NewBuckRevision:   "new-rev",
	}
}

func TestPerfTestConfigValidate(t *testing.T) {
	valid := validTestConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(c *PerfTestConfig)
		missing string
	}{
		{"no id", func(c *PerfTestConfig) { c.PerfTestID = "" }, "perftest_id"},
		{"no revisions", func(c *PerfTestConfig) { c.RevisionsToGoBack = 0 }, "revisions_to_go_back"},
		{"no iterations", func(c *PerfTestConfig) { c.IterationsPerDiff = 0 }, "iterations_per_diff"},
		{"no targets", func(c *PerfTestConfig) { c.TargetsToBuild = nil }, "targets_to_build"},
		{"blank targets", func(c *PerfTestConfig) { c.TargetsToBuild = []string{" , "} }, "targets_to_build"},
		{"no repo", func(c *PerfTestConfig) { c.RepoUnderTest = "" }, "repo_under_test"},
		{"no project", func(c *PerfTestConfig) { c.ProjectUnderTest = "" }, "project_under_test"},
		{"no buck", func(c *PerfTestConfig) { c.PathToBuck = "" }, "path_to_buck"},
		{"no old revision", func(c *PerfTestConfig) { c.OldBuckRevision = "" }, "old_buck_revision"},
		{"no new revision", func(c *PerfTestConfig) { c.NewBuckRevision = "" }, "new_buck_revision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("error %q does not name %q", err, tt.missing)
			}
		})
	}
}

func TestTargetsFlattensCommaSeparatedSpecs(t *testing.T) {
	cfg := PerfTestConfig{
		TargetsToBuild: []string{"//app:bin,//lib:core", " //tools:gen ", ""},
	}

	want := []string{"//app:bin", "//lib:core", "//tools:gen"}
	if got := cfg.Targets(); !reflect.DeepEqual(got, want) {
		t.Errorf("Targets() = %v, want %v", got, want)
	}
}

func TestLoaderReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buckperf.yaml")
	content := `test:
  perftest_id: from-file
  revisions_to_go_back: 7
  targets_to_build:
    - //app:bin
logging:
  level: debug
results:
  path: /tmp/results.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Test.PerfTestID != "from-file" {
		t.Errorf("perftest_id = %q", cfg.Test.PerfTestID)
	}
	if cfg.Test.RevisionsToGoBack != 7 {
		t.Errorf("revisions_to_go_back = %d", cfg.Test.RevisionsToGoBack)
	}
	// Defaults survive for fields the file does not set.
	if cfg.Test.IterationsPerDiff != 1 {
		t.Errorf("iterations_per_diff default = %d", cfg.Test.IterationsPerDiff)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("logging config = %+v", cfg.Logging)
	}
	if cfg.Results.Path != "/tmp/results.db" {
		t.Errorf("results path = %q", cfg.Results.Path)
	}
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Setenv("BUCKPERF_TEST_PATH_TO_BUCK", "/opt/buck")
	t.Setenv("BUCKPERF_LOGGING_FORMAT", "json")

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}

	if cfg.Test.PathToBuck != "/opt/buck" {
		t.Errorf("path_to_buck = %q", cfg.Test.PathToBuck)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging format = %q", cfg.Logging.Format)
	}
}

func TestLoaderExplicitMissingFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for explicitly specified missing config file")
	}
}
