package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-classifier/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RunRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "output.json", "output_with_categories.json")
	require.NoError(t, err)

	crawl, err := st.CreateStage(ctx, run.ID, model.StageCrawl)
	require.NoError(t, err)
	require.NoError(t, st.FinishStage(ctx, crawl.ID, model.StageStatusComplete, 120, ""))

	classify, err := st.CreateStage(ctx, run.ID, model.StageClassify)
	require.NoError(t, err)
	require.NoError(t, st.FinishStage(ctx, classify.ID, model.StageStatusFailed, 0, "classify: record 1: timeout"))

	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusFailed, "classify stage failed"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "output.json", got.CrawlPath)
	assert.Equal(t, "output_with_categories.json", got.ClassifiedPath)
	assert.Equal(t, "classify stage failed", got.Error)

	require.Len(t, got.Stages, 2)
	assert.Equal(t, model.StageCrawl, got.Stages[0].Name)
	assert.Equal(t, model.StageStatusComplete, got.Stages[0].Status)
	assert.Equal(t, 120, got.Stages[0].Records)
	require.NotNil(t, got.Stages[0].FinishedAt)

	assert.Equal(t, model.StageClassify, got.Stages[1].Name)
	assert.Equal(t, "classify: record 1: timeout", got.Stages[1].Error)
}

func TestSQLite_RunningStageHasNoFinish(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "a.json", "b.json")
	require.NoError(t, err)
	_, err = st.CreateStage(ctx, run.ID, model.StageCrawl)
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Stages, 1)
	assert.Nil(t, got.Stages[0].FinishedAt)
	assert.Zero(t, got.Stages[0].Duration())
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_FinishMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.FinishRun(ctx, "missing", model.RunStatusComplete, "")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.FinishStage(ctx, "missing", model.StageStatusComplete, 0, "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CreateStage_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.CreateStage(context.Background(), "missing", model.StageCrawl)
	assert.Error(t, err, "foreign key enforced")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := st.CreateRun(ctx, "a.json", "b.json")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, st.FinishRun(ctx, ids[0], model.RunStatusComplete, ""))
	require.NoError(t, st.FinishRun(ctx, ids[1], model.RunStatusFailed, "boom"))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, ids[1], failed[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	rest, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.NoError(t, st.Migrate(context.Background()))
}
