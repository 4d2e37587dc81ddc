package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeInternalPixelOutOfRange, "row 12 outside grid of 10 rows", nil)
	assert.Equal(t, "internal_pixel_out_of_range: row 12 outside grid of 10 rows", appErr.Error())
	assert.Nil(t, appErr.Unwrap())
}

func TestAppErrorChain(t *testing.T) {
	sentinel := errors.New("connection reset")
	appErr := NewAppError(ErrCodeUpstreamImagery, "process request failed", sentinel)
	wrapped := fmt.Errorf("farm North: %w", appErr)

	assert.ErrorIs(t, wrapped, sentinel)

	var target *AppError
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, ErrCodeUpstreamImagery, target.Code)
	assert.Equal(t, ErrCodeUpstreamImagery, CodeOf(wrapped))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternalUnexpected, CodeOf(errors.New("boom")))
}

func TestErrorCodeClassification(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		fatal      bool
		upstream   bool
		structural bool
	}{
		{ErrCodeConfigMissingCredentials, true, false, false},
		{ErrCodeConfigInvalid, true, false, false},
		{ErrCodeUpstreamImagery, false, true, false},
		{ErrCodeUpstreamElevation, false, true, false},
		{ErrCodeInternalPixelOutOfRange, false, false, true},
		{ErrCodeInternalRasterDecode, false, false, true},
		{ErrCodeValidationInvalidCoordinate, false, false, false},
		{ErrCodeSinkDB, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.code.Fatal())
			assert.Equal(t, tt.upstream, tt.code.Upstream())
			assert.Equal(t, tt.structural, tt.code.Structural())
		})
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeUpstreamImagery, "fetch failed", nil, map[string]any{"farm": "North"})
	enriched := orig.WithDetails(map[string]any{"date": "2024-05-02"})

	assert.Len(t, orig.Details, 1)
	assert.Equal(t, "North", enriched.Details["farm"])
	assert.Equal(t, "2024-05-02", enriched.Details["date"])
}
