package config

import "context"

// SecretProvider resolves SSM parameter paths to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns path -> value for every path it could
	// resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// NewSecretProvider returns the SSM provider outside local runs and nil for
// local ones, where resolution is skipped.
func NewSecretProvider(appEnv, region string) SecretProvider {
	if appEnv == "" || appEnv == localEnv {
		return nil
	}
	return NewSSMProvider(region)
}
