package output

import (
	"context"
	"fmt"
	"math"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"farmsat/internal/types"
)

const (
	// Measurement is the InfluxDB measurement enriched readings are written to.
	Measurement = "farm_reading"

	influxChunkSize = 500
)

// PointWriter is the subset of api.WriteAPIBlocking used by InfluxSink.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink writes one point per record, timestamped at the reading time.
// NaN indices and null elevations are omitted from the point's fields.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates an InfluxSink around an existing writer.
func NewInfluxSink(writer PointWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// NewInfluxClientSink connects to InfluxDB and returns the sink plus a close
// function for the underlying client.
func NewInfluxClientSink(url string, token types.SecretString, org, bucket string) (*InfluxSink, func()) {
	client := influxdb2.NewClient(url, token.Unmask())
	return NewInfluxSink(client.WriteAPIBlocking(org, bucket)), client.Close
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Publish implements Sink.
func (s *InfluxSink) Publish(ctx context.Context, run types.RunInfo, records []types.EnrichedRecord) error {
	points := make([]*write.Point, 0, len(records))
	for _, rec := range records {
		points = append(points, Point(run.RunID, rec))
	}

	for start := 0; start < len(points); start += influxChunkSize {
		end := min(start+influxChunkSize, len(points))
		if err := s.writer.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("writing points %d-%d to InfluxDB: %w", start, end-1, err)
		}
	}
	return nil
}

// Point converts one record to an InfluxDB point.
func Point(runID string, rec types.EnrichedRecord) *write.Point {
	tags := map[string]string{"farm": rec.Reading.Farm}
	if runID != "" {
		tags["run_id"] = runID
	}
	if rec.Season != types.SeasonUnknown {
		tags["season"] = string(rec.Season)
	}

	fields := map[string]any{
		"latitude":  rec.Reading.Latitude,
		"longitude": rec.Reading.Longitude,
	}
	for _, b := range types.AllBands {
		if v := rec.Bands.Get(b); finite(v) {
			fields[b.String()] = v
		}
	}
	for _, iv := range rec.Indices {
		if finite(iv.Value) {
			fields[iv.Name] = iv.Value
		}
	}
	if rec.Elevation != nil {
		fields["elevation"] = *rec.Elevation
	}
	if m, err := strconv.ParseFloat(rec.Reading.Metric, 64); err == nil && finite(m) {
		fields["metric"] = m
	}

	return influxdb2.NewPoint(Measurement, tags, fields, rec.Reading.ReadingTime)
}

// finite reports whether v can be written as a line protocol float field.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
