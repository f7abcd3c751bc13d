// Package pipeline runs the crawl and classify stages, skipping any stage
// whose output artifact is already complete.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/listing-classifier/internal/artifact"
	"github.com/sells-group/listing-classifier/internal/crawl"
	"github.com/sells-group/listing-classifier/internal/model"
	"github.com/sells-group/listing-classifier/internal/store"
)

// StageError identifies the stage that aborted a run.
type StageError struct {
	Stage model.StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Crawler produces listing records into a sink.
type Crawler interface {
	Run(ctx context.Context, sink crawl.Sink) (crawl.Stats, error)
}

// Anonymizer pseudonymizes one field of every record in place.
type Anonymizer interface {
	Apply(batch []model.Listing, field string) error
}

// Classifier assigns a category to every record in place.
type Classifier interface {
	Apply(ctx context.Context, batch []model.Listing) error
}

// Options configures stage behavior.
type Options struct {
	// AnonymizeField is the record field pseudonymized before classifying.
	AnonymizeField string
	// BatchSize is how many records the artifact writer buffers per flush.
	BatchSize int
	// RequireCompletionMarker gates stages on the artifact's completion
	// marker. When false, an existing artifact file is enough.
	RequireCompletionMarker bool
}

// Pipeline orchestrates the crawl and classify stages.
type Pipeline struct {
	crawler    Crawler
	anonymizer Anonymizer
	classifier Classifier
	store      store.Store
	opts       Options
}

// New creates a Pipeline. st may be nil, in which case runs are not
// recorded.
func New(cr Crawler, an Anonymizer, cl Classifier, st store.Store, opts Options) *Pipeline {
	if opts.AnonymizeField == "" {
		opts.AnonymizeField = "user_name"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = artifact.DefaultBatchSize
	}
	return &Pipeline{
		crawler:    cr,
		anonymizer: an,
		classifier: cl,
		store:      st,
		opts:       opts,
	}
}

type stage struct {
	name   model.StageName
	output string
	run    func(ctx context.Context) (int, error)
}

// Run executes every stage whose output is not yet complete. A failed
// stage aborts the run with a *StageError; its output is left uncommitted.
func (p *Pipeline) Run(ctx context.Context, crawlPath, classifiedPath string) (*model.Run, error) {
	log := zap.L().With(zap.String("crawl_path", crawlPath), zap.String("classified_path", classifiedPath))
	log.Info("pipeline: starting run")

	run, err := p.createRun(ctx, crawlPath, classifiedPath)
	if err != nil {
		return nil, err
	}

	stages := []stage{
		{
			name:   model.StageCrawl,
			output: crawlPath,
			run: func(ctx context.Context) (int, error) {
				return p.Crawl(ctx, crawlPath)
			},
		},
		{
			name:   model.StageClassify,
			output: classifiedPath,
			run: func(ctx context.Context) (int, error) {
				return p.Classify(ctx, crawlPath, classifiedPath)
			},
		},
	}

	for _, st := range stages {
		sr, err := p.runStage(ctx, run.ID, st)
		run.Stages = append(run.Stages, sr)
		if err != nil {
			p.finishRun(ctx, run, model.RunStatusFailed, err)
			log.Error("pipeline: run failed", zap.String("stage", string(st.name)), zap.Error(err))
			return run, err
		}
	}

	p.finishRun(ctx, run, model.RunStatusComplete, nil)
	log.Info("pipeline: run complete", zap.String("run_id", run.ID))
	return run, nil
}

func (p *Pipeline) runStage(ctx context.Context, runID string, st stage) (model.StageRun, error) {
	log := zap.L().With(zap.String("stage", string(st.name)), zap.String("output", st.output))
	sr := p.createStage(ctx, runID, st.name)

	done, err := p.done(st.output)
	if err != nil {
		err = &StageError{Stage: st.name, Err: err}
		p.finishStage(ctx, &sr, model.StageStatusFailed, 0, err)
		return sr, err
	}
	if done {
		log.Info("pipeline: stage skipped, output complete")
		p.finishStage(ctx, &sr, model.StageStatusSkipped, 0, nil)
		return sr, nil
	}

	start := time.Now()
	n, err := st.run(ctx)
	if err != nil {
		err = &StageError{Stage: st.name, Err: err}
		p.finishStage(ctx, &sr, model.StageStatusFailed, n, err)
		return sr, err
	}

	log.Info("pipeline: stage complete",
		zap.Int("records", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	p.finishStage(ctx, &sr, model.StageStatusComplete, n, nil)
	return sr, nil
}

// done reports whether a stage's output can be reused.
func (p *Pipeline) done(path string) (bool, error) {
	if p.opts.RequireCompletionMarker {
		return artifact.Complete(path)
	}
	return artifact.Exists(path)
}

// Crawl runs the crawler into a new artifact at path and returns the number
// of records written. The artifact is committed only if every lineage
// succeeded.
func (p *Pipeline) Crawl(ctx context.Context, path string) (int, error) {
	w, err := artifact.Create(path, artifact.WithBatchSize(p.opts.BatchSize))
	if err != nil {
		return 0, err
	}

	if _, err := p.crawler.Run(ctx, w); err != nil {
		return w.Count(), multierr.Append(err, w.Abort())
	}
	if err := w.Commit(); err != nil {
		return w.Count(), err
	}
	return w.Count(), nil
}

// Classify reads the crawl artifact at in, anonymizes and classifies every
// record, and writes the result to out. The input artifact is not modified.
func (p *Pipeline) Classify(ctx context.Context, in, out string) (int, error) {
	if p.opts.RequireCompletionMarker {
		ok, err := artifact.Complete(in)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, eris.Errorf("pipeline: input %s is not a completed artifact", in)
		}
	}

	records, err := artifact.ReadAll(in)
	if err != nil {
		return 0, err
	}
	if err := p.anonymizer.Apply(records, p.opts.AnonymizeField); err != nil {
		return 0, eris.Wrap(err, "pipeline: anonymize")
	}
	if err := p.classifier.Apply(ctx, records); err != nil {
		return 0, err
	}
	if err := artifact.WriteAll(out, records, artifact.WithBatchSize(p.opts.BatchSize)); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Run tracking. Store failures after the run record exists are logged and
// do not abort the run.

func (p *Pipeline) createRun(ctx context.Context, crawlPath, classifiedPath string) (*model.Run, error) {
	if p.store == nil {
		now := time.Now().UTC()
		return &model.Run{
			Status:         model.RunStatusRunning,
			CrawlPath:      crawlPath,
			ClassifiedPath: classifiedPath,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, nil
	}
	run, err := p.store.CreateRun(ctx, crawlPath, classifiedPath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

func (p *Pipeline) finishRun(ctx context.Context, run *model.Run, status model.RunStatus, runErr error) {
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if p.store == nil {
		return
	}
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run.ID, status, run.Error); err != nil {
		zap.L().Warn("pipeline: failed to record run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (p *Pipeline) createStage(ctx context.Context, runID string, name model.StageName) model.StageRun {
	sr := model.StageRun{
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if p.store == nil {
		return sr
	}
	created, err := p.store.CreateStage(ctx, runID, name)
	if err != nil {
		zap.L().Warn("pipeline: failed to record stage", zap.String("stage", string(name)), zap.Error(err))
		return sr
	}
	return *created
}

func (p *Pipeline) finishStage(ctx context.Context, sr *model.StageRun, status model.StageStatus, records int, stageErr error) {
	now := time.Now().UTC()
	sr.Status = status
	sr.Records = records
	sr.FinishedAt = &now
	if stageErr != nil {
		sr.Error = stageErr.Error()
	}
	if p.store == nil || sr.ID == "" {
		return
	}
	if err := p.store.FinishStage(context.WithoutCancel(ctx), sr.ID, status, records, sr.Error); err != nil {
		zap.L().Warn("pipeline: failed to record stage", zap.String("stage", string(sr.Name)), zap.Error(err))
	}
}
