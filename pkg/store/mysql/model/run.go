package model

import "time"

// Run MySQL model for runs table
type Run struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string     `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:idx_run_id_unique" json:"run_id"`
	Name        string     `gorm:"column:name;type:varchar(255);not null;default:''" json:"name"`
	Experiment  string     `gorm:"column:experiment;type:varchar(255);not null;index:idx_experiment_created,priority:1" json:"experiment"`
	Status      string     `gorm:"column:status;type:varchar(20);not null;default:PENDING;index:idx_status" json:"status"`
	Error       string     `gorm:"column:error;type:text" json:"error,omitempty"`
	WebhookURL  string     `gorm:"column:webhook_url;type:varchar(1000);not null;default:''" json:"webhook_url,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3);index:idx_experiment_created,priority:2;index:idx_created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
	StartedAt   *time.Time `gorm:"column:started_at;type:datetime(3)" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:datetime(3)" json:"completed_at,omitempty"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// RunParam MySQL model for run_params table
type RunParam struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID string `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:idx_run_param,priority:1" json:"run_id"`
	Key   string `gorm:"column:param_key;type:varchar(255);not null;uniqueIndex:idx_run_param,priority:2" json:"key"`
	Value string `gorm:"column:param_value;type:varchar(1000);not null;default:''" json:"value"`
}

// TableName specifies the table name for RunParam
func (RunParam) TableName() string {
	return "run_params"
}

// RunMetric MySQL model for run_metrics table
type RunMetric struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     string    `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:idx_run_metric,priority:1" json:"run_id"`
	Key       string    `gorm:"column:metric_key;type:varchar(255);not null;uniqueIndex:idx_run_metric,priority:2" json:"key"`
	Value     float64   `gorm:"column:metric_value;type:double;not null" json:"value"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for RunMetric
func (RunMetric) TableName() string {
	return "run_metrics"
}

// RunArtifact MySQL model for run_artifacts table. Bytes live in the artifact store.
type RunArtifact struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID      string    `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:idx_run_artifact,priority:1" json:"run_id"`
	Path       string    `gorm:"column:path;type:varchar(500);not null;uniqueIndex:idx_run_artifact,priority:2" json:"path"`
	StorageKey string    `gorm:"column:storage_key;type:varchar(1000);not null" json:"storage_key"`
	SizeBytes  int       `gorm:"column:size_bytes;type:int;not null;default:0" json:"size_bytes"`
	CreatedAt  time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for RunArtifact
func (RunArtifact) TableName() string {
	return "run_artifacts"
}
