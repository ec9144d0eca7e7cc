package service

import (
	"context"
	"fmt"
	"sync"

	"pdmflow/internal/model"
	"pdmflow/pkg/classifier"
	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/logger"
	"pdmflow/pkg/tracking"
)

type versionKey struct {
	name    string
	version int
}

// ModelService serves registered model versions
type ModelService struct {
	store     interfaces.TrackingStore
	artifacts interfaces.ArtifactStore
	log       *logger.Logger

	mu    sync.Mutex
	cache map[versionKey]*classifier.Model
}

// NewModelService creates a model service
func NewModelService(store interfaces.TrackingStore, artifacts interfaces.ArtifactStore, log *logger.Logger) *ModelService {
	return &ModelService{
		store:     store,
		artifacts: artifacts,
		log:       log,
		cache:     make(map[versionKey]*classifier.Model),
	}
}

// ListVersions lists registered versions of name
func (s *ModelService) ListVersions(ctx context.Context, name string) ([]*model.ModelVersion, error) {
	return s.store.ListModelVersions(ctx, name)
}

// Predict scores records with a registered version of name; version 0 is the latest
func (s *ModelService) Predict(ctx context.Context, name string, req *model.PredictRequest) (*model.PredictResponse, error) {
	if len(req.Records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrInvalidRecords)
	}

	mv, m, err := s.load(ctx, name, req.Version)
	if err != nil {
		return nil, err
	}

	X, err := m.Vectorize(req.Records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecords, err)
	}
	pred, err := m.Classifier.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("failed to predict: %w", err)
	}

	return &model.PredictResponse{
		Model:       mv.Name,
		Version:     mv.Version,
		Predictions: pred,
	}, nil
}

// load resolves the version first so "latest" never serves a stale cache entry
func (s *ModelService) load(ctx context.Context, name string, version int) (*model.ModelVersion, *classifier.Model, error) {
	mv, err := s.store.GetModelVersion(ctx, name, version)
	if err != nil {
		return nil, nil, err
	}
	if mv == nil {
		return nil, nil, fmt.Errorf("%w: %s version %d", tracking.ErrModelNotFound, name, version)
	}

	key := versionKey{name: mv.Name, version: mv.Version}
	s.mu.Lock()
	m, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return mv, m, nil
	}

	data, err := s.artifacts.Get(ctx, mv.ArtifactKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	m, err = classifier.Unmarshal(data)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.cache[key] = m
	s.mu.Unlock()
	s.log.InfoCtx(ctx, "Loaded %s version %d (%s)", mv.Name, mv.Version, m.Kind)
	return mv, m, nil
}
