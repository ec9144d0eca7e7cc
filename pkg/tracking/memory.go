package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pdmflow/internal/model"
)

// MemoryStore in-process TrackingStore used by the CLI and tests
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*model.Run
	models map[string][]*model.ModelVersion
	now    func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*model.Run),
		models: make(map[string][]*model.ModelVersion),
		now:    time.Now,
	}
}

func copyRun(r *model.Run) *model.Run {
	cp := *r
	cp.Params = make(map[string]string, len(r.Params))
	for k, v := range r.Params {
		cp.Params[k] = v
	}
	cp.Metrics = make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		cp.Metrics[k] = v
	}
	cp.Artifacts = append([]string(nil), r.Artifacts...)
	return &cp
}

// CreateRun implements interfaces.TrackingStore
func (s *MemoryStore) CreateRun(_ context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	cp := copyRun(run)
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = model.RunStatusPending
	}
	s.runs[run.ID] = cp
	return nil
}

// GetRun implements interfaces.TrackingStore
func (s *MemoryStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return copyRun(r), nil
}

// ListRuns implements interfaces.TrackingStore
func (s *MemoryStore) ListRuns(_ context.Context, experiment string, limit, offset int) ([]*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Run
	for _, r := range s.runs {
		if experiment != "" && r.Experiment != experiment {
			continue
		}
		out = append(out, copyRun(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return []*model.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// UpdateRunStatus implements interfaces.TrackingStore
func (s *MemoryStore) UpdateRunStatus(_ context.Context, id string, from []model.RunStatus, to model.RunStatus, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range from {
		if r.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	now := s.now()
	r.Status = to
	r.UpdatedAt = now
	if errMsg != "" {
		r.Error = errMsg
	}
	switch {
	case to == model.RunStatusRunning:
		r.StartedAt = &now
	case to.IsTerminal():
		r.CompletedAt = &now
	}
	return true, nil
}

// ListStaleRuns implements interfaces.TrackingStore
func (s *MemoryStore) ListStaleRuns(_ context.Context, cutoff time.Time) ([]*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Run
	for _, r := range s.runs {
		if r.Status == model.RunStatusRunning && r.StartedAt != nil && r.StartedAt.Before(cutoff) {
			out = append(out, copyRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteRunsBefore implements interfaces.TrackingStore. Runs referenced by a
// registered model version are kept.
func (s *MemoryStore) DeleteRunsBefore(_ context.Context, cutoff time.Time) ([]*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered := make(map[string]struct{})
	for _, versions := range s.models {
		for _, mv := range versions {
			registered[mv.RunID] = struct{}{}
		}
	}

	var out []*model.Run
	for id, r := range s.runs {
		if !r.Status.IsTerminal() || !r.CreatedAt.Before(cutoff) {
			continue
		}
		if _, ok := registered[id]; ok {
			continue
		}
		out = append(out, r)
		delete(s.runs, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) run(id string) (*model.Run, error) {
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return r, nil
}

// SaveParam implements interfaces.TrackingStore
func (s *MemoryStore) SaveParam(_ context.Context, runID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.run(runID)
	if err != nil {
		return err
	}
	r.Params[key] = value
	return nil
}

// SaveMetric implements interfaces.TrackingStore
func (s *MemoryStore) SaveMetric(_ context.Context, runID, key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.run(runID)
	if err != nil {
		return err
	}
	r.Metrics[key] = value
	return nil
}

// SaveArtifact implements interfaces.TrackingStore
func (s *MemoryStore) SaveArtifact(_ context.Context, runID, path, _ string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.run(runID)
	if err != nil {
		return err
	}
	for _, p := range r.Artifacts {
		if p == path {
			return nil
		}
	}
	r.Artifacts = append(r.Artifacts, path)
	sort.Strings(r.Artifacts)
	return nil
}

// CreateModelVersion implements interfaces.TrackingStore
func (s *MemoryStore) CreateModelVersion(_ context.Context, name, runID, artifactKey string) (*model.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mv := &model.ModelVersion{
		Name:        name,
		Version:     len(s.models[name]) + 1,
		RunID:       runID,
		ArtifactKey: artifactKey,
		CreatedAt:   s.now(),
	}
	s.models[name] = append(s.models[name], mv)
	cp := *mv
	return &cp, nil
}

// GetModelVersion implements interfaces.TrackingStore
func (s *MemoryStore) GetModelVersion(_ context.Context, name string, version int) (*model.ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.models[name]
	if len(versions) == 0 {
		return nil, nil
	}
	if version == 0 {
		version = len(versions)
	}
	if version < 1 || version > len(versions) {
		return nil, nil
	}
	cp := *versions[version-1]
	return &cp, nil
}

// ListModelVersions implements interfaces.TrackingStore
func (s *MemoryStore) ListModelVersions(_ context.Context, name string) ([]*model.ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ModelVersion, 0, len(s.models[name]))
	for _, mv := range s.models[name] {
		cp := *mv
		out = append(out, &cp)
	}
	return out, nil
}
