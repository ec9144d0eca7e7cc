package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pdmflow/pkg/store/mysql/model"
)

// ModelVersionRepository handles the model registry in MySQL
type ModelVersionRepository struct {
	ds *Datastore
}

// NewModelVersionRepository creates a new model version repository
func NewModelVersionRepository(ds *Datastore) *ModelVersionRepository {
	return &ModelVersionRepository{ds: ds}
}

// CreateNext inserts the next version of name. The current max row is
// locked so concurrent registrations serialize; the unique (name, version)
// index backs this up.
func (r *ModelVersionRepository) CreateNext(ctx context.Context, name, runID, artifactKey string) (*model.ModelVersion, error) {
	var mv *model.ModelVersion
	err := r.ds.ExecTx(ctx, func(ctx context.Context) error {
		var latest model.ModelVersion
		err := r.ds.DB(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", name).
			Order("version DESC").
			First(&latest).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to read latest version: %w", err)
		}

		mv = &model.ModelVersion{
			Name:        name,
			Version:     latest.Version + 1,
			RunID:       runID,
			ArtifactKey: artifactKey,
			CreatedAt:   time.Now(),
		}
		if err := r.ds.DB(ctx).Create(mv).Error; err != nil {
			return fmt.Errorf("failed to create model version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}

// Get retrieves a version of name; version 0 means latest
func (r *ModelVersionRepository) Get(ctx context.Context, name string, version int) (*model.ModelVersion, error) {
	var mv model.ModelVersion
	query := r.ds.DB(ctx).Where("name = ?", name)
	if version > 0 {
		query = query.Where("version = ?", version)
	} else {
		query = query.Order("version DESC")
	}
	err := query.First(&mv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get model version: %w", err)
	}
	return &mv, nil
}

// List lists every version of name in ascending order
func (r *ModelVersionRepository) List(ctx context.Context, name string) ([]*model.ModelVersion, error) {
	var versions []*model.ModelVersion
	err := r.ds.DB(ctx).Where("name = ?", name).Order("version ASC").Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	return versions, nil
}
