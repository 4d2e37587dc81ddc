// Package config defines the configuration for the farmsat binaries.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Missing imagery credentials or an invalid value stop the process before any
// input is read.
package config

import (
	"time"

	"farmsat/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Sentinel      SentinelConfig
	Elevation     ElevationConfig
	HTTP          HTTPConfig
	Pipeline      PipelineConfig
	Database      DatabaseConfig
	Influx        InfluxConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// SentinelConfig holds the Copernicus Data Space credentials and the imagery
// request parameters.
type SentinelConfig struct {
	ClientID     SecretString `envconfig:"SENTINEL_CLIENT_ID"`
	ClientSecret SecretString `envconfig:"SENTINEL_CLIENT_SECRET"`

	TokenURL   string `envconfig:"SENTINEL_TOKEN_URL" default:"https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token" validate:"url"`
	ProcessURL string `envconfig:"SENTINEL_PROCESS_URL" default:"https://sh.dataspace.copernicus.eu/api/v1/process" validate:"url"`

	MaxCloudCoverage int     `envconfig:"MAX_CLOUD_COVERAGE" default:"30" validate:"min=0,max=100"`
	WindowDays       int     `envconfig:"WINDOW_DAYS" default:"10" validate:"min=0"`
	ResolutionMeters float64 `envconfig:"RESOLUTION_M" default:"20" validate:"gt=0"`
}

// ElevationConfig holds the OpenTopoData endpoint settings.
type ElevationConfig struct {
	Enabled bool          `envconfig:"ELEVATION_ENABLED" default:"true"`
	BaseURL string        `envconfig:"ELEVATION_BASE_URL" default:"https://api.opentopodata.org/v1" validate:"url"`
	Dataset string        `envconfig:"ELEVATION_DATASET" default:"eudem25m" validate:"required"`
	Pacing  time.Duration `envconfig:"ELEVATION_PACING" default:"1s"`
}

// HTTPConfig tunes the outbound client shared by the imagery and elevation
// collaborators.
type HTTPConfig struct {
	Timeout            time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s" validate:"gt=0"`
	UserAgent          string        `envconfig:"HTTP_USER_AGENT" default:"farmsat/1.0"`
	BreakerFailures    uint32        `envconfig:"HTTP_BREAKER_FAILURES" default:"5" validate:"gt=0"`
	BreakerOpenTimeout time.Duration `envconfig:"HTTP_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// PipelineConfig holds input and output locations and row filtering.
type PipelineConfig struct {
	InputPath    string `envconfig:"INPUT_PATH" default:"input_files/input.csv"`
	OutputDir    string `envconfig:"OUTPUT_DIR" default:"output_files" validate:"required"`
	MetricColumn string `envconfig:"METRIC_COLUMN" default:"AverageDM" validate:"required"`
	CoordFilter  string `envconfig:"COORD_FILTER" default:"positive" validate:"oneof=positive valid"`
}

// DatabaseConfig enables the PostgreSQL sink when URL is set.
type DatabaseConfig struct {
	URL             SecretString  `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"4" validate:"gt=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	EnsureSchema    bool          `envconfig:"DB_ENSURE_SCHEMA" default:"true"`
}

// InfluxConfig enables the InfluxDB sink when URL is set.
type InfluxConfig struct {
	URL    string       `envconfig:"INFLUX_URL" validate:"omitempty,url"`
	Token  SecretString `envconfig:"INFLUX_TOKEN" validate:"required_with=URL"`
	Org    string       `envconfig:"INFLUX_ORG" validate:"required_with=URL"`
	Bucket string       `envconfig:"INFLUX_BUCKET" validate:"required_with=URL"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-west-1"`

	// Resource Identifiers. Empty disables the matching sink.
	ArchiveBucket  string `envconfig:"ARCHIVE_BUCKET"`
	ArchivePrefix  string `envconfig:"ARCHIVE_PREFIX" default:"farmsat"`
	RunEventsQueue string `envconfig:"RUN_EVENTS_QUEUE" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	// MetricNamespace empty disables CloudWatch run metrics.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
