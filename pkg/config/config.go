package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/config.yaml"

// Config pipeline service configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Queue        QueueConfig        `yaml:"queue"`
	Logger       LoggerConfig       `yaml:"logger"`
	Dataset      DatasetConfig      `yaml:"dataset"`
	Labeling     LabelingConfig     `yaml:"labeling"`
	Features     FeaturesConfig     `yaml:"features"`
	Training     TrainingConfig     `yaml:"training"`
	Tracking     TrackingConfig     `yaml:"tracking"`
	Artifacts    ArtifactsConfig    `yaml:"artifacts"`
	K8s          K8sConfig          `yaml:"k8s"`
	Notification NotificationConfig `yaml:"notification"`
	Jobs         JobsConfig         `yaml:"jobs"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for the /v1 routes (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN returns the go-sql-driver connection string.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// QueueConfig queue configuration
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`  // queue processing concurrency
	MaxRetry    int `yaml:"max_retry"`    // maximum retry count
	TaskTimeout int `yaml:"task_timeout"` // pipeline run timeout (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// DatasetConfig locates the five input tables.
type DatasetConfig struct {
	Dir         string   `yaml:"dir"`
	Telemetry   string   `yaml:"telemetry"`
	Errors      string   `yaml:"errors"`
	Maintenance string   `yaml:"maintenance"`
	Failures    string   `yaml:"failures"`
	Machines    string   `yaml:"machines"`
	TimeLayouts []string `yaml:"time_layouts"` // accepted datetime layouts, tried in order
}

// LabelingConfig failure window labeling configuration
type LabelingConfig struct {
	Horizon     int           `yaml:"horizon"`     // number of lookahead slots, including t itself
	Step        time.Duration `yaml:"step"`        // spacing of telemetry readings
	Parallelism int           `yaml:"parallelism"` // machine partitions processed concurrently
}

// FeaturesConfig rolling feature configuration
type FeaturesConfig struct {
	Window      int `yaml:"window"`
	MinPeriods  int `yaml:"min_periods"`
	Parallelism int `yaml:"parallelism"`
}

// TrainingConfig classifier and split configuration
type TrainingConfig struct {
	Classifier  string  `yaml:"classifier"` // forest, baseline
	TestSize    float64 `yaml:"test_size"`
	Seed        int64   `yaml:"seed"`
	NEstimators int     `yaml:"n_estimators"`
	ModelName   string  `yaml:"model_name"`
	RunName     string  `yaml:"run_name"`
}

// TrackingConfig experiment tracking configuration
type TrackingConfig struct {
	Backend    string `yaml:"backend"` // mysql, memory
	Experiment string `yaml:"experiment"`
}

// ArtifactsConfig artifact store configuration
type ArtifactsConfig struct {
	Backend string              `yaml:"backend"` // local, s3
	Local   LocalArtifactConfig `yaml:"local"`
	S3      S3ArtifactConfig    `yaml:"s3"`
}

// LocalArtifactConfig filesystem artifact store
type LocalArtifactConfig struct {
	Root string `yaml:"root"`
}

// S3ArtifactConfig S3 artifact store
type S3ArtifactConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // optional, for S3-compatible stores
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// K8sConfig K8s configuration
type K8sConfig struct {
	Enabled     bool   `yaml:"enabled"`      // whether pipeline runs may be launched as Jobs
	Namespace   string `yaml:"namespace"`    // K8s namespace
	Image       string `yaml:"image"`        // pipeline component image
	JobTemplate string `yaml:"job_template"` // optional Job template path
	Kubeconfig  string `yaml:"kubeconfig"`   // used outside the cluster
}

// NotificationConfig run notification configuration
type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// JobsConfig background job configuration
type JobsConfig struct {
	StaleRunTimeout time.Duration `yaml:"stale_run_timeout"`
	RetentionDays   int           `yaml:"retention_days"`
	Interval        time.Duration `yaml:"interval"`
}

// Load reads the configuration file. An empty path falls back to CONFIG_PATH
// and then to config/config.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	validateAndApplyDefaults(cfg)
	return cfg
}
