package types

import "time"

// DropReason explains why an input row was excluded before processing.
type DropReason string

const (
	DropMissingCoordinate  DropReason = "missing_coordinate"
	DropInvalidCoordinate  DropReason = "invalid_coordinate"
	DropFilteredCoordinate DropReason = "filtered_coordinate"
	DropInvalidTimestamp   DropReason = "invalid_timestamp"
	DropMalformedRow       DropReason = "malformed_row"
)

// BatchOutcome records what happened to one (farm, date) batch.
type BatchOutcome struct {
	Farm  string    `json:"farm"`
	Date  time.Time `json:"date"`
	Rows  int       `json:"rows"`
	Error string    `json:"error,omitempty"`
}

// RunReport summarises one pipeline run. Every non-fatal problem is counted
// here so that partial output is never silent.
type RunReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	RowsRead    int                `json:"rows_read"`
	RowsDropped map[DropReason]int `json:"rows_dropped,omitempty"`
	RowsWritten int                `json:"rows_written"`

	BatchesProcessed int            `json:"batches_processed"`
	BatchesSkipped   []BatchOutcome `json:"batches_skipped,omitempty"`
	BatchesFailed    []BatchOutcome `json:"batches_failed,omitempty"`

	ElevationFailures int `json:"elevation_failures"`

	// SinkFailures names the sinks that could not publish the run.
	SinkFailures []string `json:"sink_failures,omitempty"`
}

// Drop counts one dropped row.
func (r *RunReport) Drop(reason DropReason) {
	if r.RowsDropped == nil {
		r.RowsDropped = make(map[DropReason]int)
	}
	r.RowsDropped[reason]++
}

// TotalDropped returns the number of rows dropped for any reason.
func (r *RunReport) TotalDropped() int {
	n := 0
	for _, c := range r.RowsDropped {
		n += c
	}
	return n
}

// HasStructuralFailures reports whether any batch failed for a reason other
// than an upstream fetch failure.
func (r *RunReport) HasStructuralFailures() bool {
	return len(r.BatchesFailed) > 0
}

// RunInfo identifies a finished run to the output sinks.
type RunInfo struct {
	RunID      string    `json:"run_id"`
	RunDate    time.Time `json:"run_date"`
	OutputPath string    `json:"output_path"`
	Report     RunReport `json:"report"`
}
