package mysql

import "pdmflow/pkg/store/mysql/model"

// Table models re-exported for callers that only import this package
type (
	Run          = model.Run
	RunParam     = model.RunParam
	RunMetric    = model.RunMetric
	RunArtifact  = model.RunArtifact
	ModelVersion = model.ModelVersion
)
