package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageCrawl    StageName = "crawl"
	StageClassify StageName = "classify"
)

// StageStatus represents the outcome of a single stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// Run is one invocation of the pipeline.
type Run struct {
	ID             string     `json:"id"`
	Status         RunStatus  `json:"status"`
	CrawlPath      string     `json:"crawl_path"`
	ClassifiedPath string     `json:"classified_path"`
	Error          string     `json:"error,omitempty"`
	Stages         []StageRun `json:"stages,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// StageRun records what a stage did within a run.
type StageRun struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Name       StageName   `json:"name"`
	Status     StageStatus `json:"status"`
	Records    int         `json:"records"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Duration returns how long the stage ran, or zero if it has not finished.
func (s StageRun) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
