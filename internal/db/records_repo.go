package db

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"

	"farmsat/internal/indices"
	"farmsat/internal/types"
)

// RecordsTable is the table enriched readings are copied into.
const RecordsTable = "enriched_readings"

// schemaDDL creates the records table. Index columns are nullable because a
// zero denominator yields no value.
const schemaDDL = `CREATE TABLE IF NOT EXISTS enriched_readings (
	run_id        TEXT             NOT NULL,
	source_line   INTEGER          NOT NULL,
	farm          TEXT             NOT NULL,
	reading_time  TIMESTAMPTZ      NOT NULL,
	reading_date  DATE             NOT NULL,
	latitude      DOUBLE PRECISION NOT NULL,
	longitude     DOUBLE PRECISION NOT NULL,
	pixel_row     INTEGER          NOT NULL,
	pixel_col     INTEGER          NOT NULL,
	b02 DOUBLE PRECISION, b03 DOUBLE PRECISION, b04 DOUBLE PRECISION,
	b05 DOUBLE PRECISION, b06 DOUBLE PRECISION, b07 DOUBLE PRECISION,
	b08 DOUBLE PRECISION, b8a DOUBLE PRECISION, b11 DOUBLE PRECISION,
	b12 DOUBLE PRECISION,
	ndvi DOUBLE PRECISION, ndwi DOUBLE PRECISION, savi DOUBLE PRECISION,
	sipi DOUBLE PRECISION, arvi DOUBLE PRECISION, nbr DOUBLE PRECISION,
	evi DOUBLE PRECISION, gli DOUBLE PRECISION, gci DOUBLE PRECISION,
	rgr DOUBLE PRECISION,
	elevation     DOUBLE PRECISION,
	season        TEXT,
	metric        TEXT,
	PRIMARY KEY (run_id, source_line)
)`

// RecordColumns lists the COPY columns in row order.
func RecordColumns() []string {
	cols := []string{
		"run_id", "source_line", "farm", "reading_time", "reading_date",
		"latitude", "longitude", "pixel_row", "pixel_col",
	}
	for _, b := range types.AllBands {
		cols = append(cols, strings.ToLower(b.String()))
	}
	for _, name := range indices.Names() {
		cols = append(cols, strings.ToLower(name))
	}
	return append(cols, "elevation", "season", "metric")
}

// RecordRepository stores enriched readings keyed by run ID. Publishing the
// same run twice replaces its rows.
type RecordRepository struct {
	db DBTX
}

// NewRecordRepository creates a new RecordRepository backed by the given
// database connection (pool or transaction).
func NewRecordRepository(db DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// Name implements output.Sink.
func (r *RecordRepository) Name() string { return "postgres" }

// EnsureSchema creates the records table if it does not exist.
func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return types.NewAppError(types.ErrCodeSinkDB, "failed to create enriched_readings table", err)
	}
	return nil
}

// Publish implements output.Sink. When the connection can start transactions
// the delete and copy run in one.
func (r *RecordRepository) Publish(ctx context.Context, run types.RunInfo, records []types.EnrichedRecord) error {
	if b, ok := r.db.(beginner); ok {
		return pgx.BeginFunc(ctx, b, func(tx pgx.Tx) error {
			return NewRecordRepository(tx).replace(ctx, run.RunID, records)
		})
	}
	return r.replace(ctx, run.RunID, records)
}

func (r *RecordRepository) replace(ctx context.Context, runID string, records []types.EnrichedRecord) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM enriched_readings WHERE run_id = $1`, runID); err != nil {
		return types.NewAppError(types.ErrCodeSinkDB, "failed to clear previous rows for run", err)
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{RecordsTable}, RecordColumns(), pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
		return recordValues(runID, records[i]), nil
	}))
	if err != nil {
		return types.NewAppError(types.ErrCodeSinkDB, "failed to copy enriched readings", err)
	}
	if int(n) != len(records) {
		return types.NewAppError(types.ErrCodeSinkDB,
			fmt.Sprintf("copied %d of %d enriched readings", n, len(records)), nil)
	}
	return nil
}

// recordValues renders one record in RecordColumns order. NaN becomes NULL.
func recordValues(runID string, rec types.EnrichedRecord) []any {
	vals := []any{
		runID,
		rec.Reading.Line,
		rec.Reading.Farm,
		rec.Reading.ReadingTime,
		rec.ReadingDate,
		rec.Reading.Latitude,
		rec.Reading.Longitude,
		rec.Pixel.Row,
		rec.Pixel.Col,
	}
	for _, b := range types.AllBands {
		vals = append(vals, nullable(rec.Bands.Get(b)))
	}
	for _, name := range indices.Names() {
		v, _ := rec.Indices.Get(name)
		vals = append(vals, nullable(v))
	}

	var elevation any
	if rec.Elevation != nil {
		elevation = *rec.Elevation
	}
	var season any
	if rec.Season != types.SeasonUnknown {
		season = string(rec.Season)
	}
	return append(vals, elevation, season, rec.Reading.Metric)
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
