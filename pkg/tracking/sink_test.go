package tracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdmflow/internal/model"
	"pdmflow/pkg/artifact"
	"pdmflow/pkg/interfaces"
)

func newTestSink(t *testing.T, runID string) (*Sink, *MemoryStore, interfaces.ArtifactStore) {
	t.Helper()
	store := NewMemoryStore()
	artifacts, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(context.Background(), &model.Run{ID: runID, Experiment: "exp"}))
	return NewSink(runID, "exp", store, artifacts), store, artifacts
}

func TestSink_RecordsIntoStore(t *testing.T) {
	ctx := context.Background()
	sink, store, artifacts := newTestSink(t, "run-1")

	assert.Equal(t, "run-1", sink.RunID())
	require.NoError(t, sink.LogParam(ctx, "seed", "42"))
	require.NoError(t, sink.LogMetric(ctx, "test_accuracy", 0.9))
	require.NoError(t, sink.LogArtifact(ctx, "model/model.json", []byte("{}")))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "42", run.Params["seed"])
	assert.Equal(t, 0.9, run.Metrics["test_accuracy"])
	assert.Equal(t, []string{"model/model.json"}, run.Artifacts)

	raw, err := artifacts.Get(ctx, "exp/run-1/model/model.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	data, err := sink.LoadArtifact(ctx, "model/model.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestSink_RegisterAndLoadModel(t *testing.T) {
	ctx := context.Background()
	sink, _, _ := newTestSink(t, "run-1")

	_, _, err := sink.LoadModel(ctx, "m", 0)
	assert.ErrorIs(t, err, ErrModelNotFound)

	require.NoError(t, sink.LogArtifact(ctx, "model/model.json", []byte("v1")))
	mv, err := sink.RegisterModel(ctx, "m", "model/model.json")
	require.NoError(t, err)
	assert.Equal(t, 1, mv.Version)
	assert.Equal(t, "exp/run-1/model/model.json", mv.ArtifactKey)

	got, data, err := sink.LoadModel(ctx, "m", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "v1", string(data))

	_, _, err = sink.LoadModel(ctx, "m", 2)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRunPrefix(t *testing.T) {
	assert.Equal(t, "exp/run-1/", RunPrefix("exp", "run-1"))
	assert.Equal(t, "exp/run-1/a/b.json", ArtifactKey("exp", "run-1", "a/b.json"))
}
