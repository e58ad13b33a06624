package buck

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"buckperf/internal/config"
	"buckperf/internal/models"
)

func sideConfigTestConfig() *config.PerfTestConfig {
	return &config.PerfTestConfig{
		OldBuckRevision: "old-rev-sha",
		NewBuckRevision: "new-rev-sha",
	}
}

func TestWriteSideConfig(t *testing.T) {
	tests := []struct {
		name         string
		side         models.Side
		cacheMode    models.CacheMode
		dirCacheOnly bool
		wantMode     bool
		wantDir      string
		wantVersion  string
	}{
		{
			name:         "old side dir cache only",
			side:         models.SideOld,
			cacheMode:    models.CacheModeReadOnly,
			dirCacheOnly: true,
			wantMode:     true,
			wantDir:      "buck-cache-old",
			wantVersion:  "old-rev-sha",
		},
		{
			name:         "new side all backends",
			side:         models.SideNew,
			cacheMode:    models.CacheModeReadWrite,
			dirCacheOnly: false,
			wantMode:     false,
			wantDir:      "buck-cache-new",
			wantVersion:  "new-rev-sha",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()

			if err := WriteSideConfig(sideConfigTestConfig(), dir, tt.side, tt.cacheMode, tt.dirCacheOnly); err != nil {
				t.Fatalf("WriteSideConfig: %v", err)
			}

			buckconfig, err := os.ReadFile(filepath.Join(dir, ".buckconfig.local"))
			if err != nil {
				t.Fatalf("read .buckconfig.local: %v", err)
			}
			content := string(buckconfig)

			if !strings.HasPrefix(content, "[cache]\n") {
				t.Errorf("missing [cache] section header: %q", content)
			}
			if got := strings.Contains(content, "mode = dir"); got != tt.wantMode {
				t.Errorf("mode = dir present=%v, want %v: %q", got, tt.wantMode, content)
			}
			if !strings.Contains(content, "dir = "+tt.wantDir) {
				t.Errorf("missing cache dir %s: %q", tt.wantDir, content)
			}
			if !strings.Contains(content, "dir_mode = "+string(tt.cacheMode)) {
				t.Errorf("missing dir_mode %s: %q", tt.cacheMode, content)
			}

			buckversion, err := os.ReadFile(filepath.Join(dir, ".buckversion"))
			if err != nil {
				t.Fatalf("read .buckversion: %v", err)
			}
			if string(buckversion) != tt.wantVersion+"\n" {
				t.Errorf("unexpected .buckversion: %q", buckversion)
			}
		})
	}
}

func TestWriteSideConfigOverwritesPriorContent(t *testing.T) {
	dir := t.TempDir()
	cfg := sideConfigTestConfig()

	if err := WriteSideConfig(cfg, dir, models.SideOld, models.CacheModeReadWrite, false); err != nil {
		t.Fatalf("first WriteSideConfig: %v", err)
	}
	if err := WriteSideConfig(cfg, dir, models.SideNew, models.CacheModeReadOnly, true); err != nil {
		t.Fatalf("second WriteSideConfig: %v", err)
	}

	buckconfig, err := os.ReadFile(filepath.Join(dir, ".buckconfig.local"))
	if err != nil {
		t.Fatalf("read .buckconfig.local: %v", err)
	}
	if strings.Contains(string(buckconfig), "buck-cache-old") {
		t.Errorf("stale cache dir survived overwrite: %q", buckconfig)
	}

	buckversion, err := os.ReadFile(filepath.Join(dir, ".buckversion"))
	if err != nil {
		t.Fatalf("read .buckversion: %v", err)
	}
	if string(buckversion) != "new-rev-sha\n" {
		t.Errorf("stale version survived overwrite: %q", buckversion)
	}
}
