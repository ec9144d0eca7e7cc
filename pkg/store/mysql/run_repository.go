package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pdmflow/pkg/store/mysql/model"
)

// finishedStatuses statuses eligible for retention cleanup
var finishedStatuses = []string{"COMPLETED", "FAILED"}

// RunRepository handles run persistence in MySQL
type RunRepository struct {
	ds *Datastore
}

// NewRunRepository creates a new run repository
func NewRunRepository(ds *Datastore) *RunRepository {
	return &RunRepository{ds: ds}
}

// Create creates a new run
func (r *RunRepository) Create(ctx context.Context, run *model.Run) error {
	if err := r.ds.DB(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Get retrieves a run by run_id
func (r *RunRepository) Get(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	err := r.ds.DB(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// List lists runs newest first, optionally filtered by experiment
func (r *RunRepository) List(ctx context.Context, experiment string, limit, offset int) ([]*model.Run, error) {
	var runs []*model.Run
	query := r.ds.DB(ctx).Model(&model.Run{})
	if experiment != "" {
		query = query.Where("experiment = ?", experiment)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Order("created_at DESC, id DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// UpdateStatus moves a run to toStatus if its current status is one of
// fromStatuses (CAS). Returns false when no row matched.
func (r *RunRepository) UpdateStatus(ctx context.Context, runID string, fromStatuses []string, toStatus string, updates map[string]interface{}) (bool, error) {
	fields := map[string]interface{}{
		"status":     toStatus,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		fields[k] = v
	}

	result := r.ds.DB(ctx).Model(&model.Run{}).
		Where("run_id = ? AND status IN ?", runID, fromStatuses).
		Updates(fields)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update run status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListStale returns RUNNING runs started before cutoff
func (r *RunRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*model.Run, error) {
	var runs []*model.Run
	err := r.ds.DB(ctx).
		Where("status = ? AND started_at < ?", "RUNNING", cutoff).
		Order("run_id ASC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale runs: %w", err)
	}
	return runs, nil
}

// ListExpired returns finished runs created before cutoff that no model version references
func (r *RunRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]*model.Run, error) {
	var runs []*model.Run
	registered := r.ds.DB(ctx).Model(&model.ModelVersion{}).Select("run_id")
	err := r.ds.DB(ctx).
		Where("status IN ? AND created_at < ?", finishedStatuses, cutoff).
		Where("run_id NOT IN (?)", registered).
		Order("run_id ASC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired runs: %w", err)
	}
	return runs, nil
}

// Delete deletes a run together with its params, metrics and artifact records
func (r *RunRepository) Delete(ctx context.Context, runID string) error {
	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		db := r.ds.DB(ctx)
		for _, m := range []interface{}{&model.RunParam{}, &model.RunMetric{}, &model.RunArtifact{}, &model.Run{}} {
			if err := db.Where("run_id = ?", runID).Delete(m).Error; err != nil {
				return fmt.Errorf("failed to delete run %s: %w", runID, err)
			}
		}
		return nil
	})
}
