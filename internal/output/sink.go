package output

import (
	"context"
	"log/slog"

	"farmsat/internal/types"
)

// Sink receives the records of a finished run after the table has been
// written.
type Sink interface {
	Name() string
	Publish(ctx context.Context, run types.RunInfo, records []types.EnrichedRecord) error
}

// PublishAll hands the run to every sink in order. A sink failure is logged and
// its name returned; it never stops the remaining sinks.
func PublishAll(ctx context.Context, sinks []Sink, run types.RunInfo, records []types.EnrichedRecord, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	var failed []string
	for _, s := range sinks {
		if err := s.Publish(ctx, run, records); err != nil {
			logger.ErrorContext(ctx, "sink publish failed", "sink", s.Name(), "run_id", run.RunID, "error", err)
			failed = append(failed, s.Name())
			continue
		}
		logger.InfoContext(ctx, "sink published", "sink", s.Name(), "run_id", run.RunID, "records", len(records))
	}
	return failed
}
