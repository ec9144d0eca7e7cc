package mysql

import (
	"context"
	"fmt"
	"time"

	domain "pdmflow/internal/model"
)

// Repository aggregates all MySQL repositories and implements
// interfaces.TrackingStore on top of them
type Repository struct {
	ds *Datastore

	Run          *RunRepository
	RunData      *RunDataRepository
	ModelVersion *ModelVersionRepository
}

// NewRepository creates a new MySQL repository with all sub-repositories
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}
	return newRepository(ds), nil
}

func newRepository(ds *Datastore) *Repository {
	return &Repository{
		ds:           ds,
		Run:          NewRunRepository(ds),
		RunData:      NewRunDataRepository(ds),
		ModelVersion: NewModelVersionRepository(ds),
	}
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}

// CreateRun implements interfaces.TrackingStore
func (r *Repository) CreateRun(ctx context.Context, run *domain.Run) error {
	row := FromRunDomain(run)
	now := time.Now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return r.Run.Create(ctx, row)
}

// GetRun implements interfaces.TrackingStore
func (r *Repository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	run, err := r.Run.Get(ctx, id)
	if err != nil || run == nil {
		return nil, err
	}
	params, err := r.RunData.Params(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics, err := r.RunData.Metrics(ctx, id)
	if err != nil {
		return nil, err
	}
	artifacts, err := r.RunData.Artifacts(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToRunDomain(run, params, metrics, artifacts), nil
}

// ListRuns implements interfaces.TrackingStore
func (r *Repository) ListRuns(ctx context.Context, experiment string, limit, offset int) ([]*domain.Run, error) {
	runs, err := r.Run.List(ctx, experiment, limit, offset)
	if err != nil {
		return nil, err
	}
	return ToRunDomainList(runs), nil
}

// UpdateRunStatus implements interfaces.TrackingStore
func (r *Repository) UpdateRunStatus(ctx context.Context, id string, from []domain.RunStatus, to domain.RunStatus, errMsg string) (bool, error) {
	updates := make(map[string]interface{})
	now := time.Now()
	switch {
	case to == domain.RunStatusRunning:
		updates["started_at"] = now
	case to.IsTerminal():
		updates["completed_at"] = now
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return r.Run.UpdateStatus(ctx, id, statusStrings(from), string(to), updates)
}

// ListStaleRuns implements interfaces.TrackingStore
func (r *Repository) ListStaleRuns(ctx context.Context, cutoff time.Time) ([]*domain.Run, error) {
	runs, err := r.Run.ListStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return ToRunDomainList(runs), nil
}

// DeleteRunsBefore implements interfaces.TrackingStore
func (r *Repository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) ([]*domain.Run, error) {
	runs, err := r.Run.ListExpired(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	deleted := make([]*domain.Run, 0, len(runs))
	for _, run := range runs {
		if err := r.Run.Delete(ctx, run.RunID); err != nil {
			return deleted, fmt.Errorf("failed to delete expired runs: %w", err)
		}
		deleted = append(deleted, ToRunDomain(run, nil, nil, nil))
	}
	return deleted, nil
}

// SaveParam implements interfaces.TrackingStore
func (r *Repository) SaveParam(ctx context.Context, runID, key, value string) error {
	return r.RunData.UpsertParam(ctx, runID, key, value)
}

// SaveMetric implements interfaces.TrackingStore
func (r *Repository) SaveMetric(ctx context.Context, runID, key string, value float64) error {
	return r.RunData.UpsertMetric(ctx, runID, key, value)
}

// SaveArtifact implements interfaces.TrackingStore
func (r *Repository) SaveArtifact(ctx context.Context, runID, path, key string, size int) error {
	return r.RunData.UpsertArtifact(ctx, &RunArtifact{
		RunID:      runID,
		Path:       path,
		StorageKey: key,
		SizeBytes:  size,
	})
}

// CreateModelVersion implements interfaces.TrackingStore
func (r *Repository) CreateModelVersion(ctx context.Context, name, runID, artifactKey string) (*domain.ModelVersion, error) {
	mv, err := r.ModelVersion.CreateNext(ctx, name, runID, artifactKey)
	if err != nil {
		return nil, err
	}
	return ToModelVersionDomain(mv), nil
}

// GetModelVersion implements interfaces.TrackingStore
func (r *Repository) GetModelVersion(ctx context.Context, name string, version int) (*domain.ModelVersion, error) {
	mv, err := r.ModelVersion.Get(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return ToModelVersionDomain(mv), nil
}

// ListModelVersions implements interfaces.TrackingStore
func (r *Repository) ListModelVersions(ctx context.Context, name string) ([]*domain.ModelVersion, error) {
	versions, err := r.ModelVersion.List(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ModelVersion, 0, len(versions))
	for _, mv := range versions {
		out = append(out, ToModelVersionDomain(mv))
	}
	return out, nil
}
