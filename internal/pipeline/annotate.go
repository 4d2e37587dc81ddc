package pipeline

import (
	"context"
	"log/slog"

	"farmsat/internal/external"
	"farmsat/internal/season"
	"farmsat/internal/types"
)

type coordKey struct {
	lat, lon float64
}

type elevationResult struct {
	value float64
	ok    bool
}

// Annotator attaches elevation and season to enriched records. Elevation is
// looked up at most once per distinct coordinate between resets, failures
// included. Pipeline.Run resets it at the start of every run.
type Annotator struct {
	lookup external.ElevationLookup
	logger *slog.Logger
	cache  map[coordKey]elevationResult
}

// NewAnnotator creates an Annotator. A nil lookup disables elevation and every
// record gets a null elevation without counting as a failure.
func NewAnnotator(lookup external.ElevationLookup, logger *slog.Logger) *Annotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{
		lookup: lookup,
		logger: logger,
		cache:  make(map[coordKey]elevationResult),
	}
}

// Reset forgets every cached elevation, successes and failures alike.
func (a *Annotator) Reset() {
	clear(a.cache)
}

// Annotate sets rec.Elevation and rec.Season. It reports whether the elevation
// could not be determined. The only error returned is context cancellation.
func (a *Annotator) Annotate(ctx context.Context, rec *types.EnrichedRecord) (elevationMissing bool, err error) {
	rec.Season = season.Of(rec.ReadingDate)

	if a.lookup == nil {
		rec.Elevation = nil
		return false, nil
	}

	key := coordKey{lat: rec.Reading.Latitude, lon: rec.Reading.Longitude}
	res, seen := a.cache[key]
	if !seen {
		v, lookupErr := a.lookup.Elevation(ctx, key.lat, key.lon)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if lookupErr != nil {
			a.logger.WarnContext(ctx, "elevation unavailable",
				"farm", rec.Reading.Farm,
				"line", rec.Reading.Line,
				"lat", key.lat,
				"lon", key.lon,
				"error", lookupErr,
			)
		} else {
			res = elevationResult{value: v, ok: true}
		}
		a.cache[key] = res
	}

	if !res.ok {
		rec.Elevation = nil
		return true, nil
	}
	v := res.value
	rec.Elevation = &v
	return false, nil
}
