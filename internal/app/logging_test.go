package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "farm", "Alpha")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"farm":"Alpha"`)
}

func TestNewLoggerDebugAndFallback(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "DEBUG").Debug("trace")
	assert.Contains(t, buf.String(), `"msg":"trace"`)

	buf.Reset()
	logger := NewLogger(&buf, "verbose")
	logger.Debug("dropped")
	logger.Info("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
