package pipeline

import (
	"context"
	"fmt"
	"time"

	"pdmflow/internal/features"
	"pdmflow/internal/labeling"
	"pdmflow/internal/model"
	"pdmflow/internal/training"
	"pdmflow/pkg/classifier"
	"pdmflow/pkg/config"
	"pdmflow/pkg/dataset"
	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/logger"
)

// Reporter receives stage progress. It must be safe for concurrent use.
type Reporter func(stage string, done, total int)

func noopReporter(string, int, int) {}

// Pipeline load -> label -> derive -> train, configured from one Config
type Pipeline struct {
	cfg    *config.Config
	loader *dataset.Loader
	log    *logger.Logger
}

// New creates a pipeline reading the configured dataset directory
func New(cfg *config.Config, log *logger.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		loader: dataset.NewLoader(cfg.Dataset, log),
		log:    log,
	}
}

// BuildFeatures loads the dataset and assembles the feature matrix
func (p *Pipeline) BuildFeatures(ctx context.Context, report Reporter) (*features.Matrix, error) {
	m, _, err := p.build(ctx, report)
	return m, err
}

func (p *Pipeline) build(ctx context.Context, report Reporter) (*features.Matrix, *training.DataProfile, error) {
	if report == nil {
		report = noopReporter
	}

	report(model.StageLoading, 0, 1)
	start := time.Now()
	ds, err := p.loader.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	report(model.StageLoading, 1, 1)
	p.log.InfoCtx(ctx, "Loaded %d readings, %d failures, %d machines in %s",
		len(ds.Telemetry), len(ds.Failures), len(ds.Machines), time.Since(start).Round(time.Millisecond))

	return p.prepare(ctx, ds, report)
}

// Prepare labels the telemetry of ds, joins machine metadata and derives features
func (p *Pipeline) Prepare(ctx context.Context, ds *model.Dataset, report Reporter) (*features.Matrix, error) {
	if report == nil {
		report = noopReporter
	}
	m, _, err := p.prepare(ctx, ds, report)
	return m, err
}

// prepare also profiles the labeled frame before the deriver fills gaps
func (p *Pipeline) prepare(ctx context.Context, ds *model.Dataset, report Reporter) (*features.Matrix, *training.DataProfile, error) {
	readings := append([]model.Reading(nil), ds.Telemetry...)
	labeling.SortReadings(readings)

	labelOpts := labeling.OptionsFromConfig(p.cfg.Labeling)
	labelOpts.Progress = func(done, total int) {
		report(model.StageLabeling, done, total)
	}
	labeled, err := labeling.NewLabeler(labelOpts, p.log).Label(ctx, readings, ds.Failures)
	if err != nil {
		return nil, nil, err
	}
	labeling.AttachMetadata(labeled, ds.Machines)
	profile := training.ProfileFrame(labeled)

	positives := 0
	for i := range labeled {
		positives += labeled[i].Label
	}
	p.log.InfoCtx(ctx, "Labeled %d readings, %d positive (horizon=%d)",
		len(labeled), positives, p.cfg.Labeling.Horizon)

	report(model.StageFeatures, 0, len(labeled))
	m, err := features.NewDeriver(features.OptionsFromConfig(p.cfg.Features), p.log).Derive(ctx, labeled)
	if err != nil {
		return nil, nil, err
	}
	report(model.StageFeatures, m.Len(), m.Len())
	p.log.InfoCtx(ctx, "Derived %d rows x %d features", m.Len(), len(m.Columns))
	return m, profile, nil
}

// Run executes the whole pipeline and records the training run into sink
func (p *Pipeline) Run(ctx context.Context, sink interfaces.TrackingSink, report Reporter) (*training.Result, error) {
	if report == nil {
		report = noopReporter
	}
	ctx = logger.WithTraceID(ctx, sink.RunID())

	m, profile, err := p.build(ctx, report)
	if err != nil {
		return nil, err
	}
	return p.train(ctx, m, profile, sink, report)
}

// Train fits the configured classifier on m
func (p *Pipeline) Train(ctx context.Context, m *features.Matrix, sink interfaces.TrackingSink, report Reporter) (*training.Result, error) {
	if report == nil {
		report = noopReporter
	}
	return p.train(ctx, m, nil, sink, report)
}

func (p *Pipeline) train(ctx context.Context, m *features.Matrix, profile *training.DataProfile, sink interfaces.TrackingSink, report Reporter) (*training.Result, error) {
	clf, err := classifier.New(p.cfg.Training)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	report(model.StageTraining, 0, 1)
	res, err := training.NewOrchestrator(training.OptionsFromConfig(p.cfg), clf, p.log).
		WithDataProfile(profile).
		Run(ctx, m, sink)
	if err != nil {
		return nil, err
	}
	report(model.StageDone, 1, 1)
	return res, nil
}
