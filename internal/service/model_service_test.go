package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdmflow/internal/model"
	"pdmflow/pkg/artifact"
	"pdmflow/pkg/classifier"
	"pdmflow/pkg/classifier/baseline"
	"pdmflow/pkg/logger"
	"pdmflow/pkg/tracking"
)

// registerMajority registers a majority classifier predicting class
func registerMajority(t *testing.T, store *tracking.MemoryStore, artifacts *artifact.LocalStore, runID string, class int) {
	t.Helper()
	ctx := context.Background()
	clf := baseline.New()
	require.NoError(t, clf.Fit(ctx, [][]float64{{0, 0}, {1, 1}, {2, 2}}, []int{class, class, 1 - class}))

	data, err := classifier.Marshal(clf, []string{"volt", "age"}, map[string]int{"model1": 0})
	require.NoError(t, err)
	key := tracking.ArtifactKey("exp", runID, "model/model.json")
	require.NoError(t, artifacts.Put(ctx, key, data))
	_, err = store.CreateModelVersion(ctx, "FailurePredictorModel", runID, key)
	require.NoError(t, err)
}

func newModelEnv(t *testing.T) (*ModelService, *tracking.MemoryStore, *artifact.LocalStore) {
	t.Helper()
	store := tracking.NewMemoryStore()
	artifacts, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewModelService(store, artifacts, logger.NewNop()), store, artifacts
}

func TestModelService_PredictVersions(t *testing.T) {
	svc, store, artifacts := newModelEnv(t)
	ctx := context.Background()
	registerMajority(t, store, artifacts, "run-1", 0)
	registerMajority(t, store, artifacts, "run-2", 1)

	records := []map[string]float64{{"volt": 170, "age": 18}, {"volt": 160, "age": 3}}

	latest, err := svc.Predict(ctx, "FailurePredictorModel", &model.PredictRequest{Records: records})
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, []int{1, 1}, latest.Predictions)

	first, err := svc.Predict(ctx, "FailurePredictorModel", &model.PredictRequest{Version: 1, Records: records})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, []int{0, 0}, first.Predictions)

	versions, err := svc.ListVersions(ctx, "FailurePredictorModel")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestModelService_CachesDecodedModels(t *testing.T) {
	svc, store, artifacts := newModelEnv(t)
	ctx := context.Background()
	registerMajority(t, store, artifacts, "run-1", 1)

	req := &model.PredictRequest{Records: []map[string]float64{{"volt": 1, "age": 1}}}
	_, err := svc.Predict(ctx, "FailurePredictorModel", req)
	require.NoError(t, err)

	require.NoError(t, artifacts.DeletePrefix(ctx, "exp/"))
	resp, err := svc.Predict(ctx, "FailurePredictorModel", req)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, resp.Predictions)
}

func TestModelService_Errors(t *testing.T) {
	svc, store, artifacts := newModelEnv(t)
	ctx := context.Background()
	registerMajority(t, store, artifacts, "run-1", 0)

	_, err := svc.Predict(ctx, "Unknown", &model.PredictRequest{Records: []map[string]float64{{"volt": 1}}})
	assert.ErrorIs(t, err, tracking.ErrModelNotFound)

	_, err = svc.Predict(ctx, "FailurePredictorModel", &model.PredictRequest{Version: 9, Records: []map[string]float64{{"volt": 1}}})
	assert.ErrorIs(t, err, tracking.ErrModelNotFound)

	_, err = svc.Predict(ctx, "FailurePredictorModel", &model.PredictRequest{Records: []map[string]float64{{"volt": 1}}})
	assert.ErrorIs(t, err, ErrInvalidRecords)
	assert.Contains(t, err.Error(), "age")

	_, err = svc.Predict(ctx, "FailurePredictorModel", &model.PredictRequest{})
	assert.ErrorIs(t, err, ErrInvalidRecords)
}
