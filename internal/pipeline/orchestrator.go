// Package pipeline drives a run end to end: it groups readings by farm and
// reading date, fetches one image per group, maps readings to pixels, samples
// bands, derives indices and annotates each record.
//
// A run is strictly sequential. Failures are scoped as narrowly as possible:
// a bad row never reaches the pipeline, an unavailable image skips its batch, a
// structural defect fails its batch, and only context cancellation aborts the
// run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"farmsat/internal/external"
	"farmsat/internal/geo"
	"farmsat/internal/indices"
	"farmsat/internal/raster"
	"farmsat/internal/types"
)

// DefaultMaxCloudCoverage is the cloud-cover ceiling, in percent, used when
// none is configured.
const DefaultMaxCloudCoverage = 30

// Options configures a Pipeline.
type Options struct {
	MaxCloudCoverage int
	Logger           *slog.Logger
}

// Pipeline enriches readings with satellite, elevation and season data.
type Pipeline struct {
	fetcher   external.ImageFetcher
	annotator *Annotator
	maxCloud  int
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Pipeline.
func New(fetcher external.ImageFetcher, annotator *Annotator, opts Options) *Pipeline {
	p := &Pipeline{
		fetcher:   fetcher,
		annotator: annotator,
		maxCloud:  opts.MaxCloudCoverage,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if p.maxCloud <= 0 {
		p.maxCloud = DefaultMaxCloudCoverage
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.annotator == nil {
		p.annotator = NewAnnotator(nil, p.logger)
	}
	return p
}

// group is an ordered partition of readings by key.
type group[K comparable] struct {
	key      K
	readings []types.Reading
}

// groupBy partitions readings preserving the order in which keys are first
// encountered and the order of readings within each key.
func groupBy[K comparable](readings []types.Reading, keyOf func(types.Reading) K) []group[K] {
	var groups []group[K]
	pos := make(map[K]int)
	for _, r := range readings {
		k := keyOf(r)
		i, ok := pos[k]
		if !ok {
			i = len(groups)
			pos[k] = i
			groups = append(groups, group[K]{key: k})
		}
		groups[i].readings = append(groups[i].readings, r)
	}
	return groups
}

// Run enriches the readings. Records are returned farm-major, date-minor, in
// original row order within each batch. The report is always populated; when
// an error is returned no records are. Elevation lookups are memoised for
// this run only. Run must not be called concurrently on one Pipeline.
func (p *Pipeline) Run(ctx context.Context, readings []types.Reading) ([]types.EnrichedRecord, types.RunReport, error) {
	p.annotator.Reset()
	start := p.now()
	report := types.RunReport{
		RunID:     types.GetRunID(ctx),
		StartedAt: start,
	}
	finish := func(err error) ([]types.EnrichedRecord, types.RunReport, error) {
		report.Duration = p.now().Sub(start)
		return nil, report, err
	}

	var out []types.EnrichedRecord

	farms := groupBy(readings, func(r types.Reading) string { return r.Farm })
	for _, farm := range farms {
		bbox, err := geo.BoundingBoxOf(farm.readings)
		if err != nil {
			return finish(fmt.Errorf("farm %s: %w", farm.key, err))
		}

		p.logger.InfoContext(ctx, "processing farm",
			"farm", farm.key,
			"readings", len(farm.readings),
			"bbox", bbox.Slice(),
		)

		dates := groupBy(farm.readings, types.Reading.ReadingDate)
		for _, batch := range dates {
			if err := ctx.Err(); err != nil {
				return finish(err)
			}

			records, err := p.runBatch(ctx, farm.key, batch.key, bbox, batch.readings, &report)
			if err != nil {
				return finish(err)
			}
			out = append(out, records...)
		}
	}

	report.RowsWritten = len(out)
	report.Duration = p.now().Sub(start)
	p.logger.InfoContext(ctx, "run complete",
		"records", len(out),
		"batches_processed", report.BatchesProcessed,
		"batches_skipped", len(report.BatchesSkipped),
		"batches_failed", len(report.BatchesFailed),
		"elevation_failures", report.ElevationFailures,
	)
	return out, report, nil
}

// runBatch processes one (farm, date) batch. It returns an error only for
// context cancellation; every other failure is recorded in the report.
func (p *Pipeline) runBatch(
	ctx context.Context,
	farm string,
	date time.Time,
	bbox types.BoundingBox,
	readings []types.Reading,
	report *types.RunReport,
) ([]types.EnrichedRecord, error) {
	log := p.logger.With("farm", farm, "date", date.Format(time.DateOnly))
	outcome := types.BatchOutcome{Farm: farm, Date: date, Rows: len(readings)}

	img, err := p.fetcher.FetchImage(ctx, p.maxCloud, date, bbox)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		outcome.Error = err.Error()
		if types.CodeOf(err).Upstream() {
			log.WarnContext(ctx, "image unavailable, skipping batch", "rows", len(readings), "error", err)
			report.BatchesSkipped = append(report.BatchesSkipped, outcome)
		} else {
			log.ErrorContext(ctx, "image could not be used, batch failed", "rows", len(readings), "error", err)
			report.BatchesFailed = append(report.BatchesFailed, outcome)
		}
		return nil, nil
	}

	bands, err := sampleAndRelease(readings, img)
	if err != nil {
		outcome.Error = err.Error()
		log.ErrorContext(ctx, "sampling failed, batch omitted", "rows", len(readings), "error", err)
		report.BatchesFailed = append(report.BatchesFailed, outcome)
		return nil, nil
	}

	records := make([]types.EnrichedRecord, len(readings))
	for i, r := range readings {
		rec := types.EnrichedRecord{
			Reading:     r,
			ReadingDate: date,
			Pixel:       bands[i].pixel,
			Bands:       bands[i].bands,
			Indices:     indices.Compute(bands[i].bands),
		}

		missing, err := p.annotator.Annotate(ctx, &rec)
		if err != nil {
			return nil, err
		}
		if missing {
			report.ElevationFailures++
		}
		records[i] = rec
	}

	report.BatchesProcessed++
	log.InfoContext(ctx, "batch enriched", "rows", len(records))
	return records, nil
}

type sampled struct {
	pixel types.PixelAddress
	bands types.BandVector
}

// sampleAndRelease maps readings to pixels, samples every band and closes the
// image before returning.
func sampleAndRelease(readings []types.Reading, img raster.Image) (out []sampled, err error) {
	defer func() {
		if closeErr := img.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("releasing image: %w", closeErr)
		}
	}()

	addrs, err := geo.PixelsOf(readings, img.Grid())
	if err != nil {
		return nil, err
	}

	vectors, err := raster.Sample(addrs, img)
	if err != nil {
		return nil, err
	}

	out = make([]sampled, len(addrs))
	for i := range addrs {
		out[i] = sampled{pixel: addrs[i], bands: vectors[i]}
	}
	return out, nil
}
