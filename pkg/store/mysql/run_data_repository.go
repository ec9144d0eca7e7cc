package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"pdmflow/pkg/store/mysql/model"
)

// RunDataRepository handles params, metrics and artifact records of runs.
// Writes are upserts keyed by (run_id, key) so re-logging overwrites.
type RunDataRepository struct {
	ds *Datastore
}

// NewRunDataRepository creates a new run data repository
func NewRunDataRepository(ds *Datastore) *RunDataRepository {
	return &RunDataRepository{ds: ds}
}

// UpsertParam records a param
func (r *RunDataRepository) UpsertParam(ctx context.Context, runID, key, value string) error {
	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "param_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"param_value"}),
	}).Create(&model.RunParam{RunID: runID, Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("failed to save param: %w", err)
	}
	return nil
}

// UpsertMetric records a metric
func (r *RunDataRepository) UpsertMetric(ctx context.Context, runID, key string, value float64) error {
	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "metric_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"metric_value", "created_at"}),
	}).Create(&model.RunMetric{RunID: runID, Key: key, Value: value, CreatedAt: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	return nil
}

// UpsertArtifact records an artifact location
func (r *RunDataRepository) UpsertArtifact(ctx context.Context, a *model.RunArtifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_key", "size_bytes", "created_at"}),
	}).Create(a).Error
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// Params returns all params of a run
func (r *RunDataRepository) Params(ctx context.Context, runID string) ([]*model.RunParam, error) {
	var params []*model.RunParam
	if err := r.ds.DB(ctx).Where("run_id = ?", runID).Order("param_key").Find(&params).Error; err != nil {
		return nil, fmt.Errorf("failed to get params: %w", err)
	}
	return params, nil
}

// Metrics returns all metrics of a run
func (r *RunDataRepository) Metrics(ctx context.Context, runID string) ([]*model.RunMetric, error) {
	var metrics []*model.RunMetric
	if err := r.ds.DB(ctx).Where("run_id = ?", runID).Order("metric_key").Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	return metrics, nil
}

// Artifacts returns all artifact records of a run
func (r *RunDataRepository) Artifacts(ctx context.Context, runID string) ([]*model.RunArtifact, error) {
	var artifacts []*model.RunArtifact
	if err := r.ds.DB(ctx).Where("run_id = ?", runID).Order("path").Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("failed to get artifacts: %w", err)
	}
	return artifacts, nil
}
