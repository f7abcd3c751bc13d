package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-classifier/internal/anonymize"
	"github.com/sells-group/listing-classifier/internal/artifact"
	"github.com/sells-group/listing-classifier/internal/crawl"
	"github.com/sells-group/listing-classifier/internal/model"
	"github.com/sells-group/listing-classifier/internal/store"
)

func strPtr(s string) *string { return &s }

type fakeCrawler struct {
	records []model.Listing
	err     error
	calls   int
}

func (f *fakeCrawler) Run(_ context.Context, sink crawl.Sink) (crawl.Stats, error) {
	f.calls++
	var stats crawl.Stats
	for _, rec := range f.records {
		if err := sink.Write(rec); err != nil {
			return stats, err
		}
		stats.Records++
	}
	stats.Pages = 1
	return stats, f.err
}

type fakeClassifier struct {
	err   error
	calls int
}

func (f *fakeClassifier) Apply(_ context.Context, batch []model.Listing) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	for i := range batch {
		cat := ""
		if batch[i].Title != nil {
			cat = "category of " + *batch[i].Title
		}
		batch[i].Category = &cat
	}
	return nil
}

type fixture struct {
	crawler        *fakeCrawler
	classifier     *fakeClassifier
	store          *store.SQLiteStore
	pipeline       *Pipeline
	crawlPath      string
	classifiedPath string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLite(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	an, err := anonymize.New(anonymize.DefaultLength)
	require.NoError(t, err)

	f := &fixture{
		crawler: &fakeCrawler{records: []model.Listing{
			{Title: strPtr("Excelのツールを作成します"), Price: 12000, UserName: strPtr("tanaka"), SalesCount: 3},
			{Title: nil, UserName: nil},
		}},
		classifier:     &fakeClassifier{},
		store:          st,
		crawlPath:      filepath.Join(dir, "output.json"),
		classifiedPath: filepath.Join(dir, "output_with_categories.json"),
	}
	f.pipeline = New(f.crawler, an, f.classifier, st, opts)
	return f
}

func TestRun_AllStages(t *testing.T) {
	f := newFixture(t, Options{RequireCompletionMarker: true})
	ctx := context.Background()

	run, err := f.pipeline.Run(ctx, f.crawlPath, f.classifiedPath)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 1, f.crawler.calls)
	assert.Equal(t, 1, f.classifier.calls)

	require.Len(t, run.Stages, 2)
	assert.Equal(t, model.StageStatusComplete, run.Stages[0].Status)
	assert.Equal(t, 2, run.Stages[0].Records)
	assert.Equal(t, model.StageStatusComplete, run.Stages[1].Status)

	crawled, err := artifact.ReadAll(f.crawlPath)
	require.NoError(t, err)
	require.Len(t, crawled, 2)
	assert.Equal(t, "tanaka", *crawled[0].UserName, "crawl artifact keeps raw names")
	assert.Nil(t, crawled[0].Category)

	classified, err := artifact.ReadAll(f.classifiedPath)
	require.NoError(t, err)
	require.Len(t, classified, 2)
	require.NotNil(t, classified[0].UserName)
	assert.Len(t, *classified[0].UserName, 10)
	assert.NotEqual(t, "tanaka", *classified[0].UserName)
	assert.Equal(t, "category of Excelのツールを作成します", *classified[0].Category)
	assert.Nil(t, classified[1].UserName)
	assert.Equal(t, "", *classified[1].Category)

	stored, err := f.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, stored.Status)
	require.Len(t, stored.Stages, 2)
	assert.Equal(t, model.StageCrawl, stored.Stages[0].Name)
	assert.Equal(t, 2, stored.Stages[1].Records)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, Options{RequireCompletionMarker: true})
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, f.crawlPath, f.classifiedPath)
	require.NoError(t, err)
	before, err := os.ReadFile(f.classifiedPath)
	require.NoError(t, err)

	run, err := f.pipeline.Run(ctx, f.crawlPath, f.classifiedPath)
	require.NoError(t, err)
	assert.Equal(t, 1, f.crawler.calls, "second run does no crawl work")
	assert.Equal(t, 1, f.classifier.calls, "second run does no classify work")

	require.Len(t, run.Stages, 2)
	assert.Equal(t, model.StageStatusSkipped, run.Stages[0].Status)
	assert.Equal(t, model.StageStatusSkipped, run.Stages[1].Status)

	after, err := os.ReadFile(f.classifiedPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_CrawlFailureLeavesNoArtifact(t *testing.T) {
	f := newFixture(t, Options{RequireCompletionMarker: true})
	f.crawler.err = errors.New("fetch: https://coconala.com/categories/231: 503")
	ctx := context.Background()

	run, err := f.pipeline.Run(ctx, f.crawlPath, f.classifiedPath)
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, model.StageCrawl, stageErr.Stage)
	assert.Contains(t, err.Error(), "crawl stage")
	assert.Equal(t, 0, f.classifier.calls)

	exists, err := artifact.Exists(f.crawlPath)
	require.NoError(t, err)
	assert.False(t, exists, "a failed crawl does not commit records flushed before the failure")

	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	stored, err := f.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	require.Len(t, stored.Stages, 1)
	assert.Equal(t, model.StageStatusFailed, stored.Stages[0].Status)
	assert.Contains(t, stored.Stages[0].Error, "503")
}

func TestRun_ClassifyFailureResumesAtClassify(t *testing.T) {
	f := newFixture(t, Options{RequireCompletionMarker: true})
	f.classifier.err = errors.New("model unavailable")
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, f.crawlPath, f.classifiedPath)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, model.StageClassify, stageErr.Stage)

	done, err := artifact.Complete(f.crawlPath)
	require.NoError(t, err)
	assert.True(t, done)
	exists, err := artifact.Exists(f.classifiedPath)
	require.NoError(t, err)
	assert.False(t, exists)

	f.classifier.err = nil
	run, err := f.pipeline.Run(ctx, f.crawlPath, f.classifiedPath)
	require.NoError(t, err)
	assert.Equal(t, 1, f.crawler.calls, "crawl is not repeated")
	assert.Equal(t, 2, f.classifier.calls)
	assert.Equal(t, model.StageStatusSkipped, run.Stages[0].Status)
	assert.Equal(t, model.StageStatusComplete, run.Stages[1].Status)
}

func TestRun_PartialArtifactWithoutMarker(t *testing.T) {
	partial := `{"title":"x","price":0,"user_level":null,"user_name":null,"sales_count":0}` + "\n"

	t.Run("marker required reruns crawl", func(t *testing.T) {
		f := newFixture(t, Options{RequireCompletionMarker: true})
		require.NoError(t, os.WriteFile(f.crawlPath, []byte(partial), 0o644))

		_, err := f.pipeline.Run(context.Background(), f.crawlPath, f.classifiedPath)
		require.NoError(t, err)
		assert.Equal(t, 1, f.crawler.calls)

		crawled, err := artifact.ReadAll(f.crawlPath)
		require.NoError(t, err)
		assert.Len(t, crawled, 2, "partial file replaced")
	})

	t.Run("existence check trusts the file", func(t *testing.T) {
		f := newFixture(t, Options{RequireCompletionMarker: false})
		require.NoError(t, os.WriteFile(f.crawlPath, []byte(partial), 0o644))

		run, err := f.pipeline.Run(context.Background(), f.crawlPath, f.classifiedPath)
		require.NoError(t, err)
		assert.Equal(t, 0, f.crawler.calls)
		assert.Equal(t, model.StageStatusSkipped, run.Stages[0].Status)
		assert.Equal(t, 1, run.Stages[1].Records)
	})
}

func TestRun_WithoutStore(t *testing.T) {
	dir := t.TempDir()
	an, err := anonymize.New(anonymize.DefaultLength)
	require.NoError(t, err)
	cr := &fakeCrawler{records: []model.Listing{{Title: strPtr("ロゴ作成")}}}
	cl := &fakeClassifier{}

	p := New(cr, an, cl, nil, Options{RequireCompletionMarker: true})
	run, err := p.Run(context.Background(), filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json"))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Empty(t, run.ID)
	require.Len(t, run.Stages, 2)
	assert.NotNil(t, run.Stages[1].FinishedAt)
}

func TestClassify_RequiresCompletedInput(t *testing.T) {
	f := newFixture(t, Options{RequireCompletionMarker: true})
	require.NoError(t, os.WriteFile(f.crawlPath, []byte("{}\n"), 0o644))

	_, err := f.pipeline.Classify(context.Background(), f.crawlPath, f.classifiedPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a completed artifact")
	assert.Equal(t, 0, f.classifier.calls)
}

func TestClassify_AnonymizeTitle(t *testing.T) {
	f := newFixture(t, Options{RequireCompletionMarker: true, AnonymizeField: anonymize.FieldTitle})
	_, err := f.pipeline.Crawl(context.Background(), f.crawlPath)
	require.NoError(t, err)

	n, err := f.pipeline.Classify(context.Background(), f.crawlPath, f.classifiedPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	classified, err := artifact.ReadAll(f.classifiedPath)
	require.NoError(t, err)
	assert.Equal(t, "tanaka", *classified[0].UserName)
	assert.Len(t, *classified[0].Title, 10)
	assert.True(t, strings.HasPrefix(*classified[0].Category, "category of "))
}

func TestClassify_UnknownField(t *testing.T) {
	f := newFixture(t, Options{RequireCompletionMarker: true, AnonymizeField: "price"})
	_, err := f.pipeline.Crawl(context.Background(), f.crawlPath)
	require.NoError(t, err)

	_, err = f.pipeline.Classify(context.Background(), f.crawlPath, f.classifiedPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: anonymize")
}

func TestStageError(t *testing.T) {
	inner := errors.New("boom")
	err := &StageError{Stage: model.StageClassify, Err: inner}
	assert.Equal(t, "classify stage: boom", err.Error())
	assert.True(t, errors.Is(err, inner))
}
