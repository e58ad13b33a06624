package models

import "time"

// RunStatus is the lifecycle state of a recorded benchmark run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// PerfRun is the header row for one benchmark run in the results store.
type PerfRun struct {
	ID         string
	PerfTestID string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
}

// BuildRecord is one persisted build invocation within a run.
type BuildRecord struct {
	ID          string
	RunID       string
	Revision    Revision
	Side        Side
	CacheMode   CacheMode
	Clean       bool
	ElapsedMs   int64
	CacheCounts map[CacheOutcome]int
	CreatedAt   time.Time
}
