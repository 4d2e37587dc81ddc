package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks a variable whose value is the SSM path of the variable
// named by the prefix, e.g. DATABASE_URL_SSM_PARAM.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution. An unset APP_ENV
// means local.
const localEnv = "local"

// loaderDeps holds the environment accessors so tests need not mutate the
// process environment.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the configuration:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing).
//  3. Outside APP_ENV=local, resolves every X_SSM_PARAM variable through the
//     provider and exports the value as X.
//  4. Processes envconfig tags.
//  5. Requires the imagery credentials.
//  6. Validates the struct.
//
// The provider may be nil for local runs.
func LoadConfig(ctx context.Context, provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(ctx, provider, defaultDeps())
}

func loadConfigWithDeps(ctx context.Context, provider SecretProvider, deps loaderDeps) (*Config, error) {
	// Reading timestamps carry no zone; keep every derived date in UTC.
	time.Local = time.UTC

	// Existing variables win over the file.
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != "" && appEnv != localEnv {
		if err := resolveSSMParams(ctx, provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()

	if err := requireCredentials(cfg.Sentinel); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// requireCredentials reports missing Sentinel Hub credentials by variable name.
func requireCredentials(s SentinelConfig) error {
	var missing []string
	if s.ClientID.IsZero() {
		missing = append(missing, "SENTINEL_CLIENT_ID")
	}
	if s.ClientSecret.IsZero() {
		missing = append(missing, "SENTINEL_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "imagery credentials not set: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

// ssmTimeout bounds secret resolution at startup.
const ssmTimeout = 30 * time.Second

// resolveSSMParams exports the value of every X_SSM_PARAM path as X unless X
// is already set. Any unresolved path is an error.
func resolveSSMParams(ctx context.Context, provider SecretProvider, deps loaderDeps) error {
	targets := make(map[string]string) // SSM path -> target variable
	var paths, names []string

	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || path == "" || !strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		if _, dup := targets[path]; !dup {
			paths = append(paths, path)
		}
		targets[path] = target
		names = append(names, target)
	}

	if len(paths) == 0 {
		return nil
	}
	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "no SecretProvider to resolve: " + strings.Join(names, ", "),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, ssmTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, targets[path])
			continue
		}
		if err := deps.setEnv(targets[path], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: "failed to set resolved value for " + targets[path],
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "SSM parameters not found for: " + strings.Join(missing, ", "),
		}
	}
	return nil
}
