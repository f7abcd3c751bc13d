// Package store records pipeline runs and their stage outcomes.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-classifier/internal/model"
)

// ErrNotFound is returned when a run or stage does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultListLimit caps ListRuns when the filter sets no limit.
const DefaultListLimit = 100

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for run tracking.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, crawlPath, classifiedPath string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name model.StageName) (*model.StageRun, error)
	FinishStage(ctx context.Context, stageID string, status model.StageStatus, records int, errMsg string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, pool *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		if dsn == "" {
			dsn = "listing-classifier.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, pool)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}
