package model

import (
	"time"
)

// RunStatus pipeline run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"   // Pending
	RunStatusRunning   RunStatus = "RUNNING"   // Running
	RunStatusCompleted RunStatus = "COMPLETED" // Completed
	RunStatusFailed    RunStatus = "FAILED"    // Failed
)

// IsTerminal reports whether no further transition is possible
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run one tracked pipeline execution
type Run struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Experiment  string             `json:"experiment"`
	Status      RunStatus          `json:"status"`
	Params      map[string]string  `json:"params,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Artifacts   []string           `json:"artifacts,omitempty"`
	Error       string             `json:"error,omitempty"`
	WebhookURL  string             `json:"webhook_url,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// ModelVersion a registered model version
type ModelVersion struct {
	Name        string    `json:"name"`
	Version     int       `json:"version"`
	RunID       string    `json:"run_id"`
	ArtifactKey string    `json:"artifact_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunProgress stage progress of a running pipeline, kept in redis
type RunProgress struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pipeline stages reported as progress
const (
	StageLoading  = "loading"
	StageLabeling = "labeling"
	StageFeatures = "features"
	StageTraining = "training"
	StageDone     = "done"
)

// SubmitRunRequest submit pipeline run request
type SubmitRunRequest struct {
	Name       string `json:"name,omitempty"`
	Experiment string `json:"experiment,omitempty"`
	WebhookURL string `json:"webhook,omitempty"`
}

// SubmitRunResponse submit pipeline run response
type SubmitRunResponse struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`
}

// PredictRequest model prediction request. Each record maps feature name to value.
type PredictRequest struct {
	Version int                  `json:"version,omitempty"` // 0 = latest
	Records []map[string]float64 `json:"records" binding:"required"`
}

// PredictResponse model prediction response
type PredictResponse struct {
	Model       string `json:"model"`
	Version     int    `json:"version"`
	Predictions []int  `json:"predictions"`
}
