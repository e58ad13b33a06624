package perftest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"buckperf/internal/buck"
	"buckperf/internal/config"
	"buckperf/internal/logging"
	"buckperf/internal/models"
)

// ErrNoRevisions indicates the VCS history produced nothing to test.
var ErrNoRevisions = errors.New("no revisions touch the project under test")

// Orchestrator is the top-level run sequence: purge, checkout the oldest
// revision, warm the cache for both buck versions, then drive the per-
// revision tests over every remaining revision.
type Orchestrator struct {
	cfg     *config.PerfTestConfig
	builder Builder
	vcs     VCS
	driver  *Driver
	log     zerolog.Logger
}

// NewOrchestrator creates an Orchestrator and its Driver.
func NewOrchestrator(cfg *config.PerfTestConfig, builder Builder, vcs VCS) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		builder: builder,
		vcs:     vcs,
		driver:  NewDriver(cfg, builder, vcs),
		log:     logging.Component("orchestrator"),
	}
}

// Run executes the whole benchmark. Any failure is final: the run aborts
// after the driver's best-effort directory restore, and nothing is retried.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info().Str("perftest_id", o.cfg.PerfTestID).Msg("running performance test")

	if err := o.vcs.Purge(ctx, o.cfg.RepoUnderTest); err != nil {
		return err
	}

	revisions, err := o.revisionsToTest(ctx)
	if err != nil {
		return err
	}

	baseline, err := o.warmUpCache(ctx, revisions[0])
	if err != nil {
		return err
	}

	o.log.Info().Msg("cache warm, running tests")
	for i := 1; i < len(revisions); i++ {
		baseline, err = o.driver.RunTestsForRevision(ctx, revisions, i, baseline)
		if err != nil {
			return err
		}
	}

	return nil
}

// revisionsToTest lists the revisions that touched the project path, oldest
// first. The VCS reports newest-first; the extra revision beyond the
// configured look-back becomes the warm-up baseline.
func (o *Orchestrator) revisionsToTest(ctx context.Context) ([]models.Revision, error) {
	revisions, err := o.vcs.Log(ctx, o.cfg.RepoUnderTest, o.cfg.RevisionsToGoBack+1, o.cfg.ProjectUnderTest)
	if err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRevisions, o.cfg.ProjectUnderTest)
	}

	for i, j := 0, len(revisions)-1; i < j; i, j = i+1, j-1 {
		revisions[i], revisions[j] = revisions[j], revisions[i]
	}

	o.log.Info().Int("count", len(revisions)).Msg("found revisions to test")
	revisionStrings := make([]string, len(revisions))
	for i, revision := range revisions {
		revisionStrings[i] = string(revision)
	}
	o.log.Info().Strs("revisions", revisionStrings).Msg("revision list (oldest first)")

	return revisions, nil
}

// warmUpCache checks out the oldest revision and builds it with both buck
// versions, with and without restricting to the directory cache, to
// stabilize cache state before any measured build. The final result seeds
// the first tested revision's cross-directory check.
func (o *Orchestrator) warmUpCache(ctx context.Context, oldest models.Revision) (*models.BuildResult, error) {
	o.log.Info().Msg("warming up cache")

	if err := o.vcs.Update(ctx, o.cfg.RepoUnderTest, oldest); err != nil {
		return nil, err
	}

	workDir := filepath.Join(o.cfg.RepoUnderTest, o.cfg.ProjectUnderTest)

	var baseline *models.BuildResult
	for _, warmup := range []struct {
		side         models.Side
		dirCacheOnly bool
	}{
		{models.SideOld, false},
		{models.SideOld, true},
		{models.SideNew, false},
		{models.SideNew, true},
	} {
		result, err := o.builder.BuildAllTargets(ctx, buck.BuildOptions{
			WorkDir:      workDir,
			Side:         warmup.side,
			CacheMode:    models.CacheModeReadWrite,
			RunClean:     true,
			DirCacheOnly: warmup.dirCacheOnly,
			Revision:     oldest,
		})
		if err != nil {
			return nil, err
		}
		baseline = result
	}

	return baseline, nil
}
