package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"buckperf/internal/models"
)

// Run repository errors.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidRun  = errors.New("invalid run")
)

// RunRepository handles run header persistence.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run header. The ID, start time and status are filled
// in when unset.
func (r *RunRepository) Create(ctx context.Context, run *models.PerfRun) error {
	if run.PerfTestID == "" {
		return fmt.Errorf("%w: perftest id is required", ErrInvalidRun)
	}

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO perf_runs (id, perftest_id, started_at, finished_at, status)
		VALUES (?, ?, ?, NULL, ?)
	`,
		run.ID,
		run.PerfTestID,
		run.StartedAt.Format(time.RFC3339),
		string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish marks a run as completed or failed.
func (r *RunRepository) Finish(ctx context.Context, id string, status models.RunStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE perf_runs SET finished_at = ?, status = ? WHERE id = ?
	`,
		time.Now().UTC().Format(time.RFC3339),
		string(status),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get returns one run header by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.PerfRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, perftest_id, started_at, finished_at, status
		FROM perf_runs WHERE id = ?
	`, id)

	var run models.PerfRun
	var startedAt string
	var finishedAt sql.NullString
	var status string
	if err := row.Scan(&run.ID, &run.PerfTestID, &startedAt, &finishedAt, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	started, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run start time: %w", err)
	}
	run.StartedAt = started
	run.Status = models.RunStatus(status)

	if finishedAt.Valid {
		finished, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run finish time: %w", err)
		}
		run.FinishedAt = &finished
	}

	return &run, nil
}
