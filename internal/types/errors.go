package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Packages MUST use these instead of ad-hoc strings so
// that the orchestrator can classify failures with errors.As.
const (
	// Input data (row is dropped, run continues)
	ErrCodeValidationMissingCoordinate ErrorCode = "validation_missing_coordinate"
	ErrCodeValidationInvalidCoordinate ErrorCode = "validation_invalid_coordinate"
	ErrCodeValidationInvalidTimestamp  ErrorCode = "validation_invalid_timestamp"
	ErrCodeValidationMissingColumn     ErrorCode = "validation_missing_column"
	ErrCodeValidationEmptyInput        ErrorCode = "validation_empty_input"

	// Configuration (fatal at startup)
	ErrCodeConfigMissingCredentials ErrorCode = "config_missing_credentials"
	ErrCodeConfigInvalid            ErrorCode = "config_invalid"

	// Upstream (reported, batch skipped or value nulled)
	ErrCodeUpstreamImagery     ErrorCode = "upstream_imagery_unavailable"
	ErrCodeUpstreamElevation   ErrorCode = "upstream_elevation_unavailable"
	ErrCodeUpstreamAuth        ErrorCode = "upstream_auth_failed"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Output sinks (logged, never fatal to the written table)
	ErrCodeSinkDB    ErrorCode = "sink_db_error"
	ErrCodeSinkQueue ErrorCode = "sink_queue_error"

	// Structural defects (batch aborted)
	ErrCodeInternalPixelOutOfRange ErrorCode = "internal_pixel_out_of_range"
	ErrCodeInternalRasterDecode    ErrorCode = "internal_raster_decode"
	ErrCodeInternalUnexpected      ErrorCode = "internal_unexpected_error"
)

// Fatal reports whether an error with this code must abort the whole run.
// Only configuration problems qualify; everything else is scoped to a row or
// a batch.
func (c ErrorCode) Fatal() bool {
	return strings.HasPrefix(string(c), "config_")
}

// Upstream reports whether the code describes a failure of an external
// collaborator.
func (c ErrorCode) Upstream() bool {
	return strings.HasPrefix(string(c), "upstream_")
}

// Structural reports whether the code indicates a logic or data-shape defect
// rather than a transient condition.
func (c ErrorCode) Structural() bool {
	return strings.HasPrefix(string(c), "internal_")
}

// AppError is the standard error type used across farmsat packages.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from anywhere in err's chain. Errors that are
// not AppErrors report ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
