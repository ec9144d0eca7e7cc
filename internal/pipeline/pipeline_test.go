package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdmflow/internal/features"
	"pdmflow/internal/labeling"
	"pdmflow/internal/model"
	"pdmflow/internal/training"
	"pdmflow/pkg/artifact"
	"pdmflow/pkg/config"
	"pdmflow/pkg/dataset"
	"pdmflow/pkg/logger"
	"pdmflow/pkg/tracking"
)

var t0 = time.Date(2015, 1, 1, 6, 0, 0, 0, time.UTC)

// writeFixture two machines with five hourly readings each; machine 1 fails
// at its third reading.
func writeFixture(t *testing.T, telemetryOverride string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Dataset.Dir = t.TempDir()
	cfg.Training.NEstimators = 5
	cfg.Artifacts.Local.Root = t.TempDir()

	var tel strings.Builder
	tel.WriteString("datetime,machineID,volt,rotate,pressure,vibration\n")
	for m := 1; m <= 2; m++ {
		for i := 0; i < 5; i++ {
			ts := t0.Add(time.Duration(i) * time.Hour)
			fmt.Fprintf(&tel, "%s,%d,%d,%d,%d,%d\n", ts.Format(time.DateTime), m, 170+i, 450+m, 100-i, 40+m*i)
		}
	}
	if telemetryOverride != "" {
		tel.Reset()
		tel.WriteString(telemetryOverride)
	}

	files := map[string]string{
		cfg.Dataset.Telemetry:   tel.String(),
		cfg.Dataset.Errors:      "datetime,machineID,errorID\n2015-01-01 07:00:00,1,error1\n",
		cfg.Dataset.Maintenance: "datetime,machineID,comp\n2014-12-01 06:00:00,2,comp1\n",
		cfg.Dataset.Failures:    fmt.Sprintf("datetime,machineID,failure\n%s,1,comp4\n", t0.Add(2*time.Hour).Format(time.DateTime)),
		cfg.Dataset.Machines:    "machineID,model,age\n1,model3,18\n2,model4,7\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Dataset.Dir, name), []byte(content), 0o644))
	}
	return cfg
}

func TestBuildFeatures_EndToEnd(t *testing.T) {
	cfg := writeFixture(t, "")
	m, err := New(cfg, logger.NewNop()).BuildFeatures(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 10, m.Len())
	assert.Equal(t, []int{1, 1, 1, 0, 0, 0, 0, 0, 0, 0}, m.Labels)
	for i, key := range m.Keys {
		assert.Equal(t, 1+i/5, key.MachineID)
		assert.Equal(t, t0.Add(time.Duration(i%5)*time.Hour), key.Timestamp)
	}

	assert.Equal(t, []float64{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}, m.Column(features.ColModel))
	assert.Equal(t, []float64{18, 18, 18, 18, 18, 7, 7, 7, 7, 7}, m.Column(features.ColAge))
	assert.Equal(t, []float64{170, 170.5, 171, 172, 173, 170, 170.5, 171, 172, 173}, m.Column("volt_rolling_mean_3"))
	for _, c := range m.Columns {
		assert.False(t, strings.HasPrefix(c, "error"), c)
	}
}

func TestBuildFeatures_ReportsStages(t *testing.T) {
	cfg := writeFixture(t, "")
	var mu sync.Mutex
	stages := map[string]bool{}
	report := func(stage string, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		stages[stage] = true
	}

	_, err := New(cfg, logger.NewNop()).BuildFeatures(context.Background(), report)
	require.NoError(t, err)
	assert.True(t, stages[model.StageLoading])
	assert.True(t, stages[model.StageLabeling])
	assert.True(t, stages[model.StageFeatures])
}

func TestBuildFeatures_Errors(t *testing.T) {
	t.Run("missing channel column", func(t *testing.T) {
		cfg := writeFixture(t, "datetime,machineID,volt,rotate,vibration\n2015-01-01 06:00:00,1,1,1,1\n")
		_, err := New(cfg, logger.NewNop()).BuildFeatures(context.Background(), nil)
		var schemaErr *dataset.SchemaError
		require.True(t, errors.As(err, &schemaErr), "got %v", err)
		assert.Equal(t, "pressure", schemaErr.Column)
	})

	t.Run("irregular spacing", func(t *testing.T) {
		cfg := writeFixture(t, "datetime,machineID,volt,rotate,pressure,vibration\n"+
			"2015-01-01 06:00:00,1,1,1,1,1\n"+
			"2015-01-01 09:00:00,1,1,1,1,1\n")
		_, err := New(cfg, logger.NewNop()).BuildFeatures(context.Background(), nil)
		var dqErr *labeling.DataQualityError
		require.True(t, errors.As(err, &dqErr), "got %v", err)
		assert.Equal(t, 1, dqErr.MachineID)
	})
}

func TestRun_RecordsTrainingRun(t *testing.T) {
	cfg := writeFixture(t, "")
	ctx := context.Background()

	store := tracking.NewMemoryStore()
	artifacts, err := artifact.NewLocalStore(cfg.Artifacts.Local.Root)
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(ctx, &model.Run{ID: "run-1", Experiment: cfg.Tracking.Experiment}))
	sink := tracking.NewSink("run-1", cfg.Tracking.Experiment, store, artifacts)

	res, err := New(cfg, logger.NewNop()).Run(ctx, sink, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, res.TrainRows+res.TestRows)
	assert.Equal(t, 1, res.ModelVersion.Version)
	assert.Equal(t, cfg.Training.ModelName, res.ModelVersion.Name)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "forest", run.Params["classifier"])
	assert.Equal(t, "24", run.Params["label_horizon"])
	assert.Equal(t, "3", run.Params["rolling_window"])
	assert.Equal(t, 10.0, run.Metrics["num_rows"])
	assert.Equal(t, 9.0, run.Metrics["num_columns"])
	assert.Equal(t, 0.0, run.Metrics["missing_values_pct"])
	assert.Contains(t, run.Artifacts, "model/model.json")
}

func TestRun_ProfilesMissingMetadata(t *testing.T) {
	cfg := writeFixture(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dataset.Dir, cfg.Dataset.Machines),
		[]byte("machineID,model,age\n1,model3,18\n"), 0o644))
	ctx := context.Background()

	store := tracking.NewMemoryStore()
	artifacts, err := artifact.NewLocalStore(cfg.Artifacts.Local.Root)
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(ctx, &model.Run{ID: "run-1", Experiment: cfg.Tracking.Experiment}))
	sink := tracking.NewSink("run-1", cfg.Tracking.Experiment, store, artifacts)

	_, err = New(cfg, logger.NewNop()).Run(ctx, sink, nil)
	require.NoError(t, err)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, run.Metrics["num_rows"])
	assert.Equal(t, 9.0, run.Metrics["num_columns"])
	// machine 2 has five readings without model and age: 10 of 90 cells
	assert.InDelta(t, 100.0/9, run.Metrics["missing_values_pct"], 1e-9)

	data, err := sink.LoadArtifact(ctx, "data_validation/data_profile.json")
	require.NoError(t, err)
	var profile training.DataProfile
	require.NoError(t, json.Unmarshal(data, &profile))
	assert.Equal(t, 5, profile.Columns[features.ColModel].Missing)
	assert.Equal(t, 5, profile.Columns[features.ColAge].Missing)
	assert.Equal(t, 0, profile.Columns["volt"].Missing)
}

func TestRun_UnknownClassifier(t *testing.T) {
	cfg := writeFixture(t, "")
	cfg.Training.Classifier = "svm"
	ctx := context.Background()

	store := tracking.NewMemoryStore()
	artifacts, err := artifact.NewLocalStore(cfg.Artifacts.Local.Root)
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(ctx, &model.Run{ID: "run-1"}))

	_, err = New(cfg, logger.NewNop()).Run(ctx, tracking.NewSink("run-1", "exp", store, artifacts), nil)
	assert.Error(t, err)
}
