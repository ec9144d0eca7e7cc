package training

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"pdmflow/internal/features"
	"pdmflow/internal/model"
	"pdmflow/pkg/classifier"
	"pdmflow/pkg/config"
	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/logger"
)

// Artifact paths, relative to the run
const (
	ArtifactDataProfile    = "data_validation/data_profile.json"
	ArtifactTrainMetrics   = "plots/train_metrics.json"
	ArtifactInputExample   = "input_example.json"
	ArtifactModel          = "model/model.json"
	ArtifactClassification = "classification_report.json"
)

// Options training options
type Options struct {
	TestSize      float64
	Seed          int64
	ModelName     string
	LabelHorizon  int
	RollingWindow int
}

// OptionsFromConfig collects training options from the relevant config sections
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TestSize:      cfg.Training.TestSize,
		Seed:          cfg.Training.Seed,
		ModelName:     cfg.Training.ModelName,
		LabelHorizon:  cfg.Labeling.Horizon,
		RollingWindow: cfg.Features.Window,
	}
}

// Result outcome of one training run
type Result struct {
	RunID           string                `json:"run_id"`
	TrainRows       int                   `json:"train_rows"`
	TestRows        int                   `json:"test_rows"`
	TrainAccuracy   float64               `json:"train_accuracy"`
	TrainF1         float64               `json:"train_f1_score"`
	TestAccuracy    float64               `json:"test_accuracy"`
	TestF1          float64               `json:"test_f1_score"`
	Report          *ClassificationReport `json:"classification_report"`
	ModelVersion    *model.ModelVersion   `json:"model_version"`
	SmokePrediction []int                 `json:"smoke_prediction"`
}

// Orchestrator splits the matrix, fits the classifier and records the run
type Orchestrator struct {
	opts    Options
	clf     interfaces.Classifier
	profile *DataProfile
	log     *logger.Logger
}

// NewOrchestrator creates an orchestrator around an unfitted classifier
func NewOrchestrator(opts Options, clf interfaces.Classifier, log *logger.Logger) *Orchestrator {
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		opts.TestSize = config.DefaultTestSize
	}
	if opts.ModelName == "" {
		opts.ModelName = config.DefaultModelName
	}
	return &Orchestrator{opts: opts, clf: clf, log: log}
}

// WithDataProfile sets the data validation report logged for the run,
// normally ProfileFrame of the labeled readings. Without one the feature
// matrix is profiled.
func (o *Orchestrator) WithDataProfile(p *DataProfile) *Orchestrator {
	o.profile = p
	return o
}

// Run trains on m and reports everything to sink.
func (o *Orchestrator) Run(ctx context.Context, m *features.Matrix, sink interfaces.TrackingSink) (*Result, error) {
	ctx = logger.WithTraceID(ctx, sink.RunID())
	res := &Result{RunID: sink.RunID()}

	trainIdx, testIdx, err := StratifiedSplit(m.Labels, o.opts.TestSize, o.opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split data: %w", err)
	}
	train := m.Subset(trainIdx)
	test := m.Subset(testIdx)
	res.TrainRows, res.TestRows = train.Len(), test.Len()
	o.log.InfoCtx(ctx, "Split %d rows into train=%d test=%d (test_size=%.2f seed=%d)",
		m.Len(), train.Len(), test.Len(), o.opts.TestSize, o.opts.Seed)

	if err := o.logDataProfile(ctx, m, sink); err != nil {
		return nil, err
	}
	if err := o.logParams(ctx, sink); err != nil {
		return nil, err
	}

	if err := o.clf.Fit(ctx, train.Rows, train.Labels); err != nil {
		return nil, fmt.Errorf("failed to fit %s classifier: %w", o.clf.Kind(), err)
	}
	trainPred, err := o.clf.Predict(train.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to predict training rows: %w", err)
	}
	res.TrainAccuracy = Accuracy(train.Labels, trainPred)
	res.TrainF1 = F1(train.Labels, trainPred)
	if err := logMetrics(ctx, sink, map[string]float64{
		"train_accuracy": res.TrainAccuracy,
		"train_f1_score": res.TrainF1,
	}); err != nil {
		return nil, err
	}
	if err := logJSON(ctx, sink, ArtifactTrainMetrics, map[string]interface{}{
		"accuracy":         res.TrainAccuracy,
		"f1_score":         res.TrainF1,
		"confusion_matrix": NewConfusionMatrix(train.Labels, trainPred, []int{0, 1}),
	}); err != nil {
		return nil, err
	}

	example := inputExample(train)
	if err := logJSON(ctx, sink, ArtifactInputExample, example); err != nil {
		return nil, err
	}

	bundle, err := classifier.Marshal(o.clf, m.Columns, m.Categories)
	if err != nil {
		return nil, err
	}
	if err := sink.LogArtifact(ctx, ArtifactModel, bundle); err != nil {
		return nil, fmt.Errorf("failed to log model: %w", err)
	}
	res.ModelVersion, err = sink.RegisterModel(ctx, o.opts.ModelName, ArtifactModel)
	if err != nil {
		return nil, fmt.Errorf("failed to register model: %w", err)
	}
	o.log.InfoCtx(ctx, "Registered %s version %d", res.ModelVersion.Name, res.ModelVersion.Version)

	// evaluate the logged artifact rather than the in-memory classifier
	data, err := sink.LoadArtifact(ctx, ArtifactModel)
	if err != nil {
		return nil, fmt.Errorf("failed to reload model: %w", err)
	}
	loaded, err := classifier.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	testPred, err := loaded.Classifier.Predict(test.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to predict test rows: %w", err)
	}
	res.TestAccuracy = Accuracy(test.Labels, testPred)
	res.TestF1 = F1(test.Labels, testPred)
	res.Report = NewClassificationReport(test.Labels, testPred)
	if err := logMetrics(ctx, sink, map[string]float64{
		"test_accuracy": res.TestAccuracy,
		"test_f1_score": res.TestF1,
	}); err != nil {
		return nil, err
	}
	if err := logJSON(ctx, sink, ArtifactClassification, res.Report); err != nil {
		return nil, err
	}

	res.SmokePrediction, err = o.smokeCheck(ctx, sink, example)
	if err != nil {
		return nil, err
	}

	o.log.InfoCtx(ctx, "Training finished: train_accuracy=%.4f train_f1=%.4f test_accuracy=%.4f test_f1=%.4f",
		res.TrainAccuracy, res.TrainF1, res.TestAccuracy, res.TestF1)
	return res, nil
}

func (o *Orchestrator) logDataProfile(ctx context.Context, m *features.Matrix, sink interfaces.TrackingSink) error {
	profile := o.profile
	if profile == nil {
		profile = Profile(m.Columns, m.Rows, m.Labels, features.ColLabel)
	}
	if err := logJSON(ctx, sink, ArtifactDataProfile, profile); err != nil {
		return err
	}
	return logMetrics(ctx, sink, map[string]float64{
		"num_rows":           float64(profile.NumRows),
		"num_columns":        float64(profile.NumColumns),
		"missing_values_pct": profile.MissingValuesPct,
	})
}

func (o *Orchestrator) logParams(ctx context.Context, sink interfaces.TrackingSink) error {
	params := map[string]string{
		"classifier":     o.clf.Kind(),
		"test_size":      strconv.FormatFloat(o.opts.TestSize, 'g', -1, 64),
		"seed":           strconv.FormatInt(o.opts.Seed, 10),
		"label_horizon":  strconv.Itoa(o.opts.LabelHorizon),
		"rolling_window": strconv.Itoa(o.opts.RollingWindow),
	}
	for k, v := range o.clf.Params() {
		params[k] = v
	}
	for _, k := range sortedKeys(params) {
		if err := sink.LogParam(ctx, k, params[k]); err != nil {
			return fmt.Errorf("failed to log param %s: %w", k, err)
		}
	}
	return nil
}

// smokeCheck loads the latest registered version the way a deployment would
// and predicts the input example with it.
func (o *Orchestrator) smokeCheck(ctx context.Context, sink interfaces.TrackingSink, example []map[string]float64) ([]int, error) {
	mv, data, err := sink.LoadModel(ctx, o.opts.ModelName, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest %s: %w", o.opts.ModelName, err)
	}
	deployed, err := classifier.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	pred, err := deployed.PredictRecords(example)
	if err != nil {
		return nil, fmt.Errorf("smoke prediction failed: %w", err)
	}
	o.log.InfoCtx(ctx, "Smoke prediction from %s version %d: %v", mv.Name, mv.Version, pred)
	return pred, nil
}

// inputExample returns the first training row as a record list
func inputExample(train *features.Matrix) []map[string]float64 {
	if train.Len() == 0 {
		return []map[string]float64{}
	}
	rec := make(map[string]float64, len(train.Columns))
	for j, name := range train.Columns {
		rec[name] = train.Rows[0][j]
	}
	return []map[string]float64{rec}
}

func logMetrics(ctx context.Context, sink interfaces.TrackingSink, metrics map[string]float64) error {
	for _, k := range sortedKeys(metrics) {
		if err := sink.LogMetric(ctx, k, metrics[k]); err != nil {
			return fmt.Errorf("failed to log metric %s: %w", k, err)
		}
	}
	return nil
}

func logJSON(ctx context.Context, sink interfaces.TrackingSink, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := sink.LogArtifact(ctx, path, data); err != nil {
		return fmt.Errorf("failed to log artifact %s: %w", path, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
