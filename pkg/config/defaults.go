package config

import (
	"runtime"
	"time"
)

// Default values
const (
	DefaultPort            = 8080
	DefaultQueueConc       = 2
	DefaultQueueMaxRetry   = 0
	DefaultTaskTimeout     = 3600
	DefaultLabelHorizon    = 24
	DefaultLabelStep       = time.Hour
	DefaultRollingWindow   = 3
	DefaultMinPeriods      = 1
	DefaultTestSize        = 0.2
	DefaultSeed            = 42
	DefaultNEstimators     = 100
	DefaultModelName       = "FailurePredictorModel"
	DefaultRunName         = "RandomForestFailurePrediction"
	DefaultExperiment      = "predictive-maintenance"
	DefaultArtifactRoot    = "artifacts"
	DefaultNamespace       = "default"
	DefaultStaleRunTimeout = 2 * time.Hour
	DefaultRetentionDays   = 30
	DefaultJobsInterval    = 5 * time.Minute
)

// DefaultTimeLayouts lists the datetime formats seen in the PdM tables.
var DefaultTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04",
}

// validateAndApplyDefaults replaces missing or invalid values with defaults.
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" && cfg.Server.Mode != "test" {
		cfg.Server.Mode = "release"
	}

	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = DefaultQueueConc
	}
	if cfg.Queue.MaxRetry < 0 {
		cfg.Queue.MaxRetry = DefaultQueueMaxRetry
	}
	if cfg.Queue.TaskTimeout <= 0 {
		cfg.Queue.TaskTimeout = DefaultTaskTimeout
	}

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		cfg.Logger.Level = "info"
	}
	switch cfg.Logger.Output {
	case "console", "file", "both":
	default:
		cfg.Logger.Output = "console"
	}
	if cfg.Logger.Output != "console" && cfg.Logger.File.Path == "" {
		cfg.Logger.File.Path = "logs/pdmflow.log"
	}

	applyDatasetDefaults(&cfg.Dataset)

	if cfg.Labeling.Horizon <= 0 {
		cfg.Labeling.Horizon = DefaultLabelHorizon
	}
	if cfg.Labeling.Step <= 0 {
		cfg.Labeling.Step = DefaultLabelStep
	}
	if cfg.Labeling.Parallelism <= 0 {
		cfg.Labeling.Parallelism = runtime.NumCPU()
	}

	if cfg.Features.Window <= 0 {
		cfg.Features.Window = DefaultRollingWindow
	}
	if cfg.Features.MinPeriods <= 0 || cfg.Features.MinPeriods > cfg.Features.Window {
		cfg.Features.MinPeriods = DefaultMinPeriods
	}
	if cfg.Features.Parallelism <= 0 {
		cfg.Features.Parallelism = runtime.NumCPU()
	}

	applyTrainingDefaults(&cfg.Training)

	if cfg.Tracking.Backend != "mysql" && cfg.Tracking.Backend != "memory" {
		cfg.Tracking.Backend = "memory"
	}
	if cfg.Tracking.Experiment == "" {
		cfg.Tracking.Experiment = DefaultExperiment
	}

	if cfg.Artifacts.Backend != "local" && cfg.Artifacts.Backend != "s3" {
		cfg.Artifacts.Backend = "local"
	}
	if cfg.Artifacts.Local.Root == "" {
		cfg.Artifacts.Local.Root = DefaultArtifactRoot
	}

	if cfg.K8s.Namespace == "" {
		cfg.K8s.Namespace = DefaultNamespace
	}

	if cfg.Jobs.StaleRunTimeout <= 0 {
		cfg.Jobs.StaleRunTimeout = DefaultStaleRunTimeout
	}
	if cfg.Jobs.RetentionDays <= 0 {
		cfg.Jobs.RetentionDays = DefaultRetentionDays
	}
	if cfg.Jobs.Interval <= 0 {
		cfg.Jobs.Interval = DefaultJobsInterval
	}
}

func applyDatasetDefaults(d *DatasetConfig) {
	if d.Dir == "" {
		d.Dir = "data"
	}
	if d.Telemetry == "" {
		d.Telemetry = "PdM_telemetry.csv"
	}
	if d.Errors == "" {
		d.Errors = "PdM_errors.csv"
	}
	if d.Maintenance == "" {
		d.Maintenance = "PdM_maint.csv"
	}
	if d.Failures == "" {
		d.Failures = "PdM_failures.csv"
	}
	if d.Machines == "" {
		d.Machines = "PdM_machines.csv"
	}
	if len(d.TimeLayouts) == 0 {
		d.TimeLayouts = append([]string(nil), DefaultTimeLayouts...)
	}
}

func applyTrainingDefaults(t *TrainingConfig) {
	if t.Classifier != "forest" && t.Classifier != "baseline" {
		t.Classifier = "forest"
	}
	if t.TestSize <= 0 || t.TestSize >= 1 {
		t.TestSize = DefaultTestSize
	}
	if t.Seed == 0 {
		t.Seed = DefaultSeed
	}
	if t.NEstimators <= 0 {
		t.NEstimators = DefaultNEstimators
	}
	if t.ModelName == "" {
		t.ModelName = DefaultModelName
	}
	if t.RunName == "" {
		t.RunName = DefaultRunName
	}
}
