package buck

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"buckperf/internal/config"
	"buckperf/internal/logging"
	"buckperf/internal/models"
)

const (
	loggingPropertiesName = ".bucklogging.local.properties"
	verboseLogRelPath     = "buck-out/log/buck-0.log"
	buildLogRelPath       = "buck-out/bin/build.log"
)

// The default configuration has the root logger and FileHandler discard
// anything below FINE. Rule key logging uses FINER, so both need to be
// reconfigured before every build.
const loggingProperties = ".level=FINER\njava.util.logging.FileHandler.level=FINER\n"

// BuildOptions parameterizes one buck invocation.
type BuildOptions struct {
	// WorkDir is the project directory the build runs in.
	WorkDir string

	// Side selects which buck version the build uses.
	Side models.Side

	// CacheMode selects readonly or readwrite directory cache access.
	CacheMode models.CacheMode

	// RunClean runs `buck clean` before the build.
	RunClean bool

	// DirCacheOnly restricts buck to the directory cache backend.
	DirCacheOnly bool

	// LogAsPerfTest tags the build with the perftest id and side for the
	// external metrics pipeline.
	LogAsPerfTest bool

	// Revision is the revision the working tree is at. It is carried for
	// result recording only; buck never sees it.
	Revision models.Revision
}

// Invoker runs buck builds and turns their logs into BuildResults.
type Invoker struct {
	cfg *config.PerfTestConfig
	log zerolog.Logger
}

// NewInvoker creates an Invoker for the given run parameters.
func NewInvoker(cfg *config.PerfTestConfig) *Invoker {
	return &Invoker{cfg: cfg, log: logging.Component("buck")}
}

// BuildAllTargets reconfigures the side, optionally cleans, then runs one
// `buck build` of every configured target and returns the parsed result.
func (inv *Invoker) BuildAllTargets(ctx context.Context, opts BuildOptions) (*models.BuildResult, error) {
	if err := WriteSideConfig(inv.cfg, opts.WorkDir, opts.Side, opts.CacheMode, opts.DirCacheOnly); err != nil {
		return nil, err
	}
	if opts.RunClean {
		if err := inv.Clean(ctx, opts.WorkDir); err != nil {
			return nil, err
		}
	}
	return inv.buildTargets(ctx, opts)
}

// Clean runs `buck clean` in dir.
func (inv *Invoker) Clean(ctx context.Context, dir string) error {
	inv.log.Info().Msg("running buck clean")

	cmd := exec.CommandContext(ctx, inv.cfg.PathToBuck, "clean")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		inv.log.Error().Str("output", string(bytes.TrimSpace(out))).Msg("buck clean failed")
		return fmt.Errorf("buck clean failed: %w", err)
	}
	return nil
}

func (inv *Invoker) buildTargets(ctx context.Context, opts BuildOptions) (*models.BuildResult, error) {
	// Unconditional overwrite before every invocation; a previous run or a
	// checkout may have replaced the file.
	propertiesPath := filepath.Join(opts.WorkDir, loggingPropertiesName)
	if err := os.WriteFile(propertiesPath, []byte(loggingProperties), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", loggingPropertiesName, err)
	}

	targets := inv.cfg.Targets()
	inv.log.Info().Strs("targets", targets).Str("side", string(opts.Side)).Msg("running buck build")

	args := []string{"build", "--deep"}
	args = append(args, targets...)
	args = append(args, "-v", "5")

	cmd := exec.CommandContext(ctx, inv.cfg.PathToBuck, args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = inv.buildEnv(opts)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		// A build failure always aborts the run; never retried. Dump the
		// full captured output first so the cause is on the record.
		inv.log.Error().Str("output", output.String()).Msg("buck build failed")
		return nil, fmt.Errorf("buck build failed: %w", err)
	}

	result, err := inv.parseBuildLogs(opts.WorkDir, output.Bytes(), elapsed)
	if err != nil {
		return nil, err
	}

	inv.log.Info().
		Float64("elapsed_seconds", result.Elapsed.Seconds()).
		Interface("cache_counts", result.CacheCounts()).
		Msg("test build finished")
	return result, nil
}

// buildEnv assembles a per-invocation environment snapshot from the process
// environment plus call-specific overrides. Nothing global is mutated.
func (inv *Invoker) buildEnv(opts BuildOptions) []string {
	env := append([]string(nil), os.Environ()...)

	// The working tree has usually just been renamed, which buck would
	// otherwise flag as dirty.
	env = append(env, "BUCK_REPOSITORY_DIRTY=0")

	if opts.LogAsPerfTest {
		env = append(env, fmt.Sprintf(
			"BUCK_EXTRA_JAVA_ARGS=-Dbuck.perftest_id=%s, -Dbuck.perftest_side=%s",
			inv.cfg.PerfTestID, opts.Side))
	}
	return env
}

// parseBuildLogs locates the two log artifacts under the build's output
// directory and assembles the BuildResult. Rule key descriptions come from
// the verbose log file when it exists, otherwise from the captured stdout;
// only one source is ever consulted.
func (inv *Invoker) parseBuildLogs(workDir string, captured []byte, elapsed time.Duration) (*models.BuildResult, error) {
	var ruleKeys map[string]string

	verbosePath := filepath.Join(workDir, filepath.FromSlash(verboseLogRelPath))
	if verboseLog, err := os.Open(verbosePath); err == nil {
		inv.log.Debug().Str("path", verbosePath).Msg("reading rule keys from verbose log")
		ruleKeys, err = ParseRuleKeys(verboseLog, RuleKeyVerbosePattern)
		verboseLog.Close()
		if err != nil {
			return nil, err
		}
	} else {
		inv.log.Debug().Msg("no verbose log found, reading rule keys from captured output")
		ruleKeys, err = ParseRuleKeys(bytes.NewReader(captured), RuleKeyStdoutPattern)
		if err != nil {
			return nil, err
		}
	}

	buildLogPath := filepath.Join(workDir, filepath.FromSlash(buildLogRelPath))
	buildLog, err := os.Open(buildLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open build log: %w", err)
	}
	defer buildLog.Close()

	cacheResults, ruleKeyMap, err := ParseBuildLog(buildLog, ruleKeys)
	if err != nil {
		return nil, err
	}

	return &models.BuildResult{
		Elapsed:      elapsed,
		CacheResults: cacheResults,
		RuleKeys:     ruleKeyMap,
	}, nil
}
