package tracking

import (
	"context"
	"fmt"
	"path"

	"pdmflow/internal/model"
	"pdmflow/pkg/interfaces"
)

// Sink records one run into a TrackingStore, with artifact bytes kept in an
// ArtifactStore under <experiment>/<runID>/<path>.
type Sink struct {
	runID      string
	experiment string
	store      interfaces.TrackingStore
	artifacts  interfaces.ArtifactStore
}

// NewSink creates a sink for an existing run
func NewSink(runID, experiment string, store interfaces.TrackingStore, artifacts interfaces.ArtifactStore) *Sink {
	return &Sink{
		runID:      runID,
		experiment: experiment,
		store:      store,
		artifacts:  artifacts,
	}
}

// ArtifactKey returns the storage key of a run-relative artifact path
func ArtifactKey(experiment, runID, p string) string {
	return path.Join(experiment, runID, p)
}

// RunPrefix returns the storage prefix holding every artifact of a run
func RunPrefix(experiment, runID string) string {
	return path.Join(experiment, runID) + "/"
}

// RunID implements interfaces.TrackingSink
func (s *Sink) RunID() string {
	return s.runID
}

// LogParam implements interfaces.TrackingSink
func (s *Sink) LogParam(ctx context.Context, key, value string) error {
	return s.store.SaveParam(ctx, s.runID, key, value)
}

// LogMetric implements interfaces.TrackingSink
func (s *Sink) LogMetric(ctx context.Context, key string, value float64) error {
	return s.store.SaveMetric(ctx, s.runID, key, value)
}

// LogArtifact implements interfaces.TrackingSink
func (s *Sink) LogArtifact(ctx context.Context, p string, data []byte) error {
	key := ArtifactKey(s.experiment, s.runID, p)
	if err := s.artifacts.Put(ctx, key, data); err != nil {
		return err
	}
	return s.store.SaveArtifact(ctx, s.runID, p, key, len(data))
}

// LoadArtifact implements interfaces.TrackingSink
func (s *Sink) LoadArtifact(ctx context.Context, p string) ([]byte, error) {
	return s.artifacts.Get(ctx, ArtifactKey(s.experiment, s.runID, p))
}

// RegisterModel implements interfaces.TrackingSink
func (s *Sink) RegisterModel(ctx context.Context, name, p string) (*model.ModelVersion, error) {
	return s.store.CreateModelVersion(ctx, name, s.runID, ArtifactKey(s.experiment, s.runID, p))
}

// LoadModel implements interfaces.TrackingSink
func (s *Sink) LoadModel(ctx context.Context, name string, version int) (*model.ModelVersion, []byte, error) {
	return LoadModel(ctx, s.store, s.artifacts, name, version)
}

// LoadModel resolves a registered version and reads its artifact. version 0
// selects the latest.
func LoadModel(ctx context.Context, store interfaces.TrackingStore, artifacts interfaces.ArtifactStore, name string, version int) (*model.ModelVersion, []byte, error) {
	mv, err := store.GetModelVersion(ctx, name, version)
	if err != nil {
		return nil, nil, err
	}
	if mv == nil {
		if version == 0 {
			return nil, nil, fmt.Errorf("%w: %s has no versions", ErrModelNotFound, name)
		}
		return nil, nil, fmt.Errorf("%w: %s version %d", ErrModelNotFound, name, version)
	}
	data, err := artifacts.Get(ctx, mv.ArtifactKey)
	if err != nil {
		return nil, nil, err
	}
	return mv, data, nil
}
