package interfaces

import (
	"context"
	"time"

	"pdmflow/internal/model"
)

// TrackingSink records params, metrics, artifacts and model versions for one run
type TrackingSink interface {
	// RunID returns the id of the run being recorded
	RunID() string

	LogParam(ctx context.Context, key, value string) error
	LogMetric(ctx context.Context, key string, value float64) error

	// LogArtifact stores data under a run-relative path, e.g. "model/model.json"
	LogArtifact(ctx context.Context, path string, data []byte) error

	// LoadArtifact reads back an artifact logged by this run
	LoadArtifact(ctx context.Context, path string) ([]byte, error)

	// RegisterModel registers the artifact at path as a new version of name
	RegisterModel(ctx context.Context, name, path string) (*model.ModelVersion, error)

	// LoadModel returns a registered version and its artifact bytes.
	// version 0 selects the latest version.
	LoadModel(ctx context.Context, name string, version int) (*model.ModelVersion, []byte, error)
}

// TrackingStore persists runs, their params/metrics/artifacts and the model registry
// Supports MySQL and in-memory implementations
type TrackingStore interface {
	CreateRun(ctx context.Context, run *model.Run) error

	// GetRun returns nil, nil when the run does not exist
	GetRun(ctx context.Context, id string) (*model.Run, error)

	// ListRuns lists runs newest first; empty experiment means all experiments
	ListRuns(ctx context.Context, experiment string, limit, offset int) ([]*model.Run, error)

	// UpdateRunStatus moves a run from one of from to to (CAS). Returns false
	// when the run was not in an expected state.
	UpdateRunStatus(ctx context.Context, id string, from []model.RunStatus, to model.RunStatus, errMsg string) (bool, error)

	// ListStaleRuns returns RUNNING runs started before cutoff
	ListStaleRuns(ctx context.Context, cutoff time.Time) ([]*model.Run, error)

	// DeleteRunsBefore removes finished runs created before cutoff and returns their ids
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) ([]*model.Run, error)

	SaveParam(ctx context.Context, runID, key, value string) error
	SaveMetric(ctx context.Context, runID, key string, value float64) error
	SaveArtifact(ctx context.Context, runID, path, key string, size int) error

	// CreateModelVersion registers the next version number of name
	CreateModelVersion(ctx context.Context, name, runID, artifactKey string) (*model.ModelVersion, error)

	// GetModelVersion returns nil, nil when absent. version 0 selects the latest.
	GetModelVersion(ctx context.Context, name string, version int) (*model.ModelVersion, error)

	ListModelVersions(ctx context.Context, name string) ([]*model.ModelVersion, error)
}
