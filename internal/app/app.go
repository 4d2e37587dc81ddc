// Package app assembles a configured enrichment run: input table in, dated
// output table plus optional sinks and run metrics out. Both binaries share
// it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"farmsat/internal/config"
	"farmsat/internal/external"
	"farmsat/internal/ingest"
	"farmsat/internal/metrics"
	"farmsat/internal/output"
	"farmsat/internal/pipeline"
	"farmsat/internal/types"
)

// ErrPartialRun is returned by Run, wrapped, when the table was written but
// at least one batch failed structurally.
var ErrPartialRun = errors.New("one or more batches failed")

// Components are the collaborators a Runner drives. Nil Elevation leaves
// every elevation empty; nil Metrics records nothing.
type Components struct {
	Fetcher   external.ImageFetcher
	Elevation external.ElevationLookup
	Sinks     []output.Sink
	Metrics   metrics.RunMetrics
	Logger    *slog.Logger
}

// Runner executes enrichment runs.
type Runner struct {
	reader   *ingest.CSVReader
	pipeline *pipeline.Pipeline
	table    *output.TableWriter
	sinks    []output.Sink
	metrics  metrics.RunMetrics
	logger   *slog.Logger

	now      func() time.Time
	newRunID func() string
	closers  []func()
}

// New assembles a Runner from configuration and already-built collaborators.
func New(cfg *config.Config, c Components) (*Runner, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	filter, err := ingest.ParseCoordinateFilter(cfg.Pipeline.CoordFilter)
	if err != nil {
		return nil, err
	}
	if c.Fetcher == nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "no image fetcher configured", nil)
	}

	m := c.Metrics
	if m == nil {
		m = metrics.NoopRunMetrics{}
	}

	return &Runner{
		reader: ingest.NewCSVReader(ingest.Options{
			MetricColumn: cfg.Pipeline.MetricColumn,
			Filter:       filter,
			Logger:       logger,
		}),
		pipeline: pipeline.New(c.Fetcher, pipeline.NewAnnotator(c.Elevation, logger), pipeline.Options{
			MaxCloudCoverage: cfg.Sentinel.MaxCloudCoverage,
			Logger:           logger,
		}),
		table:    output.NewTableWriter(cfg.Pipeline.MetricColumn),
		sinks:    c.Sinks,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

// Table returns the writer used for the dated output and the archive.
func (r *Runner) Table() *output.TableWriter { return r.table }

// Close releases every connection opened by Build.
func (r *Runner) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Run reads the input table, enriches it, writes {outputDir}/output_{date}.csv
// and publishes the run to every sink.
//
// A fatal error (unreadable input, cancellation, unwritable output) returns
// no output path. When the table was written but some batch failed, the
// returned RunInfo is complete and the error wraps ErrPartialRun.
func (r *Runner) Run(ctx context.Context, input io.Reader, outputDir string) (types.RunInfo, error) {
	run := types.RunInfo{
		RunID:   r.newRunID(),
		RunDate: r.now().UTC(),
	}
	logger := r.logger.With("run_id", run.RunID)
	ctx = types.WithRunID(ctx, run.RunID)
	ctx = types.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "run started", "output_dir", outputDir)

	readings, drops, err := r.reader.ReadAll(input)
	if err != nil {
		return run, err
	}

	records, report, err := r.pipeline.Run(ctx, readings)
	drops.Apply(&report)
	report.RunID = run.RunID
	run.Report = report
	if err != nil {
		return run, err
	}

	path := output.DatedPath(outputDir, run.RunDate)
	if err := output.WriteFile(path, r.table, records); err != nil {
		return run, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to write output table", err)
	}
	run.OutputPath = path

	run.Report.SinkFailures = output.PublishAll(ctx, r.sinks, run, records, types.LoggerFromContext(ctx))
	r.metrics.RecordRun(ctx, run.Report)

	logger.InfoContext(ctx, "run finished",
		"output_path", path,
		"rows_read", run.Report.RowsRead,
		"rows_dropped", run.Report.TotalDropped(),
		"rows_written", run.Report.RowsWritten,
		"batches_skipped", len(run.Report.BatchesSkipped),
		"batches_failed", len(run.Report.BatchesFailed),
		"elevation_failures", run.Report.ElevationFailures,
		"sink_failures", run.Report.SinkFailures,
	)

	if n := len(run.Report.BatchesFailed); n > 0 {
		return run, fmt.Errorf("%w: %d of %d", ErrPartialRun, n, run.Report.BatchesProcessed+len(run.Report.BatchesSkipped)+n)
	}
	return run, nil
}
