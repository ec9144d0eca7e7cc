package model

import "time"

// ModelVersion MySQL model for model_versions table
type ModelVersion struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex:idx_name_version,priority:1" json:"name"`
	Version     int       `gorm:"column:version;type:int;not null;uniqueIndex:idx_name_version,priority:2" json:"version"`
	RunID       string    `gorm:"column:run_id;type:varchar(64);not null;index:idx_model_run" json:"run_id"`
	ArtifactKey string    `gorm:"column:artifact_key;type:varchar(1000);not null" json:"artifact_key"`
	CreatedAt   time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for ModelVersion
func (ModelVersion) TableName() string {
	return "model_versions"
}
