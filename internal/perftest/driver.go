// Package perftest implements the benchmark orchestration state machine:
// the per-revision sequence of configure, clean, checkout, build, parse and
// validate steps, and the cache-reuse invariants between them.
package perftest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"buckperf/internal/buck"
	"buckperf/internal/config"
	"buckperf/internal/logging"
	"buckperf/internal/models"
)

// Builder runs one buck invocation. Satisfied by buck.Invoker; tests drive
// the state machine with fakes.
type Builder interface {
	BuildAllTargets(ctx context.Context, opts buck.BuildOptions) (*models.BuildResult, error)
}

// VCS is the narrow view of the version-control collaborator the state
// machine needs. Satisfied by hg.Client.
type VCS interface {
	Log(ctx context.Context, root string, limit int, path string) ([]models.Revision, error)
	Update(ctx context.Context, root string, revision models.Revision) error
	Purge(ctx context.Context, root string) error
}

// Fatal invariant violations. A run that trips either produces untrustworthy
// numbers, so there is no recovery path.
var (
	ErrCacheNotReused   = errors.New("failed to reuse cache across directories")
	ErrNoopBuildDidWork = errors.New("noop build did not hit all of its keys")
)

// Driver runs the per-revision test sequence.
type Driver struct {
	cfg     *config.PerfTestConfig
	builder Builder
	vcs     VCS
	log     zerolog.Logger

	// renameDir relocates and restores the working tree. Swapped out in
	// tests so the state machine can run against a fake filesystem.
	renameDir func(oldPath, newPath string) error
}

// NewDriver creates a Driver.
func NewDriver(cfg *config.PerfTestConfig, builder Builder, vcs VCS) *Driver {
	return &Driver{
		cfg:       cfg,
		builder:   builder,
		vcs:       vcs,
		log:       logging.Component("driver"),
		renameDir: os.Rename,
	}
}

// RunTestsForRevision runs the full test sequence for revisions[index],
// using lastResult (the previous revision's final build) as the baseline for
// the cross-directory cache check. It returns the final no-op build result,
// which becomes the next revision's baseline.
//
// The working tree is renamed to an isolated per-iteration directory for the
// duration of the sequence and renamed back on every exit path, so a failed
// run still leaves the filesystem resumable.
func (d *Driver) RunTestsForRevision(ctx context.Context, revisions []models.Revision, index int, lastResult *models.BuildResult) (result *models.BuildResult, err error) {
	revision := revisions[index]
	d.log.Info().Str("revision", string(revision)).Msg("running tests at revision")

	relocatedName := fmt.Sprintf("%s_test_iteration_%d", filepath.Base(d.cfg.RepoUnderTest), index)
	relocatedRoot := filepath.Join(filepath.Dir(d.cfg.RepoUnderTest), relocatedName)
	workDir := filepath.Join(relocatedRoot, d.cfg.ProjectUnderTest)

	// Rename the directory to flush out cache entries that depend on the
	// tree's absolute path.
	d.log.Info().Str("from", d.cfg.RepoUnderTest).Str("to", relocatedRoot).Msg("relocating working tree")
	if renameErr := d.renameDir(d.cfg.RepoUnderTest, relocatedRoot); renameErr != nil {
		return nil, fmt.Errorf("failed to relocate working tree: %w", renameErr)
	}
	defer func() {
		d.log.Info().Str("from", relocatedRoot).Str("to", d.cfg.RepoUnderTest).Msg("restoring working tree")
		if renameErr := d.renameDir(relocatedRoot, d.cfg.RepoUnderTest); renameErr != nil {
			if err == nil {
				result = nil
				err = fmt.Errorf("failed to restore working tree: %w", renameErr)
			} else {
				d.log.Error().Err(renameErr).Msg("failed to restore working tree")
			}
		}
	}()

	// The tree is still at the previous revision here; only the path changed.
	d.log.Info().Msg("checking new revision for problems with absolute paths")
	probe, err := d.builder.BuildAllTargets(ctx, buck.BuildOptions{
		WorkDir:       workDir,
		Side:          models.SideNew,
		CacheMode:     models.CacheModeReadOnly,
		RunClean:      true,
		DirCacheOnly:  true,
		LogAsPerfTest: true,
		Revision:      revisions[index-1],
	})
	if err != nil {
		return nil, err
	}
	if err := d.checkCacheReuse(probe, lastResult, revisions[index-1]); err != nil {
		return nil, err
	}

	if err := d.vcs.Update(ctx, relocatedRoot, revision); err != nil {
		return nil, err
	}

	// Read-only for every iteration except the last, which writes back:
	// exactly one write per revision keeps the cache from growing without
	// bound while still exercising the write path.
	cacheMode := models.CacheModeReadOnly
	for attempt := 0; attempt < d.cfg.IterationsPerDiff; attempt++ {
		cacheMode = models.CacheModeReadOnly
		if attempt == d.cfg.IterationsPerDiff-1 {
			cacheMode = models.CacheModeReadWrite
		}

		for _, side := range []models.Side{models.SideOld, models.SideNew} {
			_, err := d.builder.BuildAllTargets(ctx, buck.BuildOptions{
				WorkDir:       workDir,
				Side:          side,
				CacheMode:     cacheMode,
				RunClean:      true,
				DirCacheOnly:  true,
				LogAsPerfTest: true,
				Revision:      revision,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	d.log.Info().Msg("checking that a noop build does nothing")
	result, err = d.builder.BuildAllTargets(ctx, buck.BuildOptions{
		WorkDir:       workDir,
		Side:          models.SideNew,
		CacheMode:     cacheMode,
		RunClean:      false,
		DirCacheOnly:  true,
		LogAsPerfTest: true,
		Revision:      revision,
	})
	if err != nil {
		return nil, err
	}
	if err := checkNoopBuild(result, revision); err != nil {
		return nil, err
	}

	return result, nil
}

// checkCacheReuse validates the post-relocation build: every outcome bucket
// must be DIR_HIT or IGNORED. Anything else means some rule key changed when
// only the directory path did, which points at a path-sensitive fingerprint.
// Each missed rule is dumped with its old and new keys before failing.
func (d *Driver) checkCacheReuse(result, lastResult *models.BuildResult, builtAt models.Revision) error {
	var suspect []models.CacheOutcome
	for outcome := range result.CacheResults {
		if outcome != models.CacheOutcomeDirHit && outcome != models.CacheOutcomeIgnored {
			suspect = append(suspect, outcome)
		}
	}
	if len(suspect) == 0 {
		return nil
	}

	d.log.Error().
		Str("revision", string(builtAt)).
		Msg("building with the new buck version was unable to reuse the cache from a previous run; this suggests a rule key contains an absolute path")

	for _, rule := range result.CacheResults[models.CacheOutcomeMiss] {
		key := result.RuleKeys[rule.RuleName]
		event := d.log.Error().
			Str("rule", rule.RuleName).
			Str("new_key", key.Fingerprint).
			Str("new_key_debug", key.Debug)
		if lastResult != nil {
			if old, ok := lastResult.RuleKeys[rule.RuleName]; ok {
				event = event.Str("old_key", old.Fingerprint).Str("old_key_debug", old.Debug)
			} else {
				event = event.Bool("in_previous_build", false)
			}
		}
		event.Msg("rule missed")
	}

	return fmt.Errorf("%w at revision %s: suspect outcomes %v", ErrCacheNotReused, builtAt, suspect)
}

// checkNoopBuild validates a build of an unchanged tree: after discarding
// any DIR_HIT bucket, the outcome set must be exactly LOCAL_KEY_UNCHANGED_HIT.
func checkNoopBuild(result *models.BuildResult, revision models.Revision) error {
	buckets := result.CacheCounts()
	delete(buckets, models.CacheOutcomeDirHit)

	if _, ok := buckets[models.CacheOutcomeLocalKeyUnchanged]; ok && len(buckets) == 1 {
		return nil
	}
	return fmt.Errorf("%w at revision %s: cache outcomes %v", ErrNoopBuildDidWork, revision, buckets)
}
