package perftest

import (
	"context"

	"buckperf/internal/buck"
	"buckperf/internal/db"
	"buckperf/internal/models"
)

// RecordingBuilder wraps a Builder and persists one row per successful build
// invocation. A failed write is returned as an error: the operator asked for
// a record of the run, so a run that cannot be recorded stops like any other
// failure.
type RecordingBuilder struct {
	inner  Builder
	builds *db.BuildRepository
	runID  string
}

// NewRecordingBuilder creates a RecordingBuilder persisting into the given
// run.
func NewRecordingBuilder(inner Builder, builds *db.BuildRepository, runID string) *RecordingBuilder {
	return &RecordingBuilder{inner: inner, builds: builds, runID: runID}
}

// BuildAllTargets delegates to the wrapped Builder and records the result.
func (b *RecordingBuilder) BuildAllTargets(ctx context.Context, opts buck.BuildOptions) (*models.BuildResult, error) {
	result, err := b.inner.BuildAllTargets(ctx, opts)
	if err != nil {
		return nil, err
	}

	record := &models.BuildRecord{
		RunID:       b.runID,
		Revision:    opts.Revision,
		Side:        opts.Side,
		CacheMode:   opts.CacheMode,
		Clean:       opts.RunClean,
		ElapsedMs:   result.Elapsed.Milliseconds(),
		CacheCounts: result.CacheCounts(),
	}
	if err := b.builds.Create(ctx, record); err != nil {
		return nil, err
	}

	return result, nil
}
