package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"buckperf/internal/models"
)

// ErrInvalidBuild indicates a build record missing required fields.
var ErrInvalidBuild = errors.New("invalid build record")

// BuildRepository handles per-build result persistence.
type BuildRepository struct {
	db *DB
}

// NewBuildRepository creates a new BuildRepository.
func NewBuildRepository(db *DB) *BuildRepository {
	return &BuildRepository{db: db}
}

// Create inserts one build record. The ID and creation time are filled in
// when unset.
func (r *BuildRepository) Create(ctx context.Context, record *models.BuildRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidBuild)
	}
	if record.Side == "" {
		return fmt.Errorf("%w: side is required", ErrInvalidBuild)
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	countsJSON, err := json.Marshal(record.CacheCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal cache counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO perf_builds (
			id, run_id, revision, side, cache_mode, clean, elapsed_ms, cache_counts_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.RunID,
		string(record.Revision),
		string(record.Side),
		string(record.CacheMode),
		record.Clean,
		record.ElapsedMs,
		string(countsJSON),
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert build record: %w", err)
	}
	return nil
}

// ListByRun returns all build records for a run in insertion order.
func (r *BuildRepository) ListByRun(ctx context.Context, runID string) ([]*models.BuildRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, revision, side, cache_mode, clean, elapsed_ms, cache_counts_json, created_at
		FROM perf_builds WHERE run_id = ? ORDER BY created_at, rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query build records: %w", err)
	}
	defer rows.Close()

	var records []*models.BuildRecord
	for rows.Next() {
		var record models.BuildRecord
		var revision, side, cacheMode, countsJSON, createdAt string
		if err := rows.Scan(
			&record.ID,
			&record.RunID,
			&revision,
			&side,
			&cacheMode,
			&record.Clean,
			&record.ElapsedMs,
			&countsJSON,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan build record: %w", err)
		}

		record.Revision = models.Revision(revision)
		record.Side = models.Side(side)
		record.CacheMode = models.CacheMode(cacheMode)

		if err := json.Unmarshal([]byte(countsJSON), &record.CacheCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache counts: %w", err)
		}
		created, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse build record time: %w", err)
		}
		record.CreatedAt = created

		records = append(records, &record)
	}
	return records, rows.Err()
}
