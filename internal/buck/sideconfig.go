package buck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"buckperf/internal/config"
	"buckperf/internal/logging"
	"buckperf/internal/models"
)

const (
	buckconfigLocalName = ".buckconfig.local"
	buckversionName     = ".buckversion"
)

// WriteSideConfig overwrites the two per-checkout configuration artifacts
// before a build: .buckconfig.local selects the cache mode and a
// side-specific cache directory (old and new buck never share a cache
// namespace), and .buckversion pins which buck revision is active. Both are
// full overwrites with no inspection of prior content.
func WriteSideConfig(cfg *config.PerfTestConfig, dir string, side models.Side, cacheMode models.CacheMode, dirCacheOnly bool) error {
	logger := logging.Component("buck")
	logger.Info().
		Str("side", string(side)).
		Str("cache_mode", string(cacheMode)).
		Msg("reconfiguring buck side")

	var buckconfig strings.Builder
	buckconfig.WriteString("[cache]\n")
	if dirCacheOnly {
		buckconfig.WriteString("    mode = dir\n")
	}
	fmt.Fprintf(&buckconfig, "    dir = buck-cache-%s\n", side)
	fmt.Fprintf(&buckconfig, "    dir_mode = %s\n", cacheMode)

	buckconfigPath := filepath.Join(dir, buckconfigLocalName)
	if err := os.WriteFile(buckconfigPath, []byte(buckconfig.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", buckconfigLocalName, err)
	}

	version := cfg.OldBuckRevision
	if side == models.SideNew {
		version = cfg.NewBuckRevision
	}
	buckversionPath := filepath.Join(dir, buckversionName)
	if err := os.WriteFile(buckversionPath, []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", buckversionName, err)
	}

	return nil
}
