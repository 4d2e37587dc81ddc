package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "copernicus-client-secret"

func TestSecretStringRedaction(t *testing.T) {
	s := SecretString(testSecret)

	assert.Equal(t, redactedPlaceholder, s.String())
	assert.NotContains(t, fmt.Sprintf("%s %v", s, s), testSecret)

	data, err := json.Marshal(struct {
		Secret SecretString `json:"secret"`
	}{Secret: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"secret":"***REDACTED***"}`, string(data))

	assert.Equal(t, testSecret, s.Unmask())
}

func TestSecretStringSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("token request", "client_secret", SecretString(testSecret))

	assert.NotContains(t, buf.String(), testSecret)
	assert.Contains(t, buf.String(), redactedPlaceholder)
}

func TestSecretStringIsZero(t *testing.T) {
	assert.True(t, SecretString("").IsZero())
	assert.False(t, SecretString("x").IsZero())
}
