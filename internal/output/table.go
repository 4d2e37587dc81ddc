// Package output renders enriched records as the consolidated output table and
// publishes finished runs to optional sinks (object storage archive, InfluxDB).
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"farmsat/internal/indices"
	"farmsat/internal/ingest"
	"farmsat/internal/types"
)

// Timestamp layouts of the output table.
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = time.DateOnly
)

// TableWriter writes enriched records as CSV with a fixed column order.
type TableWriter struct {
	metricColumn string
}

// NewTableWriter creates a TableWriter. The metric column keeps the name it
// had in the input; empty selects ingest.DefaultMetricColumn.
func NewTableWriter(metricColumn string) *TableWriter {
	if metricColumn == "" {
		metricColumn = ingest.DefaultMetricColumn
	}
	return &TableWriter{metricColumn: metricColumn}
}

// Header returns the output column names.
func (w *TableWriter) Header() []string {
	h := []string{"FarmName", "ReadingDateTime", "ReadingDate", "Latitude", "Longitude"}
	for _, b := range types.AllBands {
		h = append(h, b.String())
	}
	h = append(h, indices.Names()...)
	return append(h, "Elevation", "Season", w.metricColumn)
}

// Row renders one record. NaN values and null elevation become empty cells.
func (w *TableWriter) Row(rec types.EnrichedRecord) []string {
	row := make([]string, 0, 5+types.NumBands+len(indices.Formulas)+3)
	row = append(row,
		rec.Reading.Farm,
		rec.Reading.ReadingTime.Format(DateTimeLayout),
		rec.ReadingDate.Format(DateLayout),
		formatFloat(rec.Reading.Latitude, 64),
		formatFloat(rec.Reading.Longitude, 64),
	)

	// Bands are sampled from FLOAT32 planes; render them at that precision.
	for _, b := range types.AllBands {
		row = append(row, formatFloat(rec.Bands.Get(b), 32))
	}

	for _, name := range indices.Names() {
		v, _ := rec.Indices.Get(name)
		row = append(row, formatFloat(v, 64))
	}

	elevation := ""
	if rec.Elevation != nil {
		elevation = formatFloat(*rec.Elevation, 64)
	}
	return append(row, elevation, string(rec.Season), rec.Reading.Metric)
}

// Write renders the header and every record.
func (w *TableWriter) Write(out io.Writer, records []types.EnrichedRecord) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(w.Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(w.Row(rec)); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64, bitSize int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, bitSize)
}
