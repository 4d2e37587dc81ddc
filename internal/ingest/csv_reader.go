// Package ingest reads the input readings table and turns each row into a
// types.Reading, dropping rows whose coordinates or timestamp cannot be used.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"farmsat/internal/types"
)

// Column names of the input file.
const (
	ColFarmName        = "FarmName"
	ColReadingDateTime = "ReadingDateTime"
	ColLongitude       = "Longitude"
	ColLatitude        = "Latitude"

	// DefaultMetricColumn is the dry-matter column carried through to the
	// output.
	DefaultMetricColumn = "AverageDM"
)

// Options configures a CSVReader.
type Options struct {
	MetricColumn string
	Filter       CoordinateFilter
	Logger       *slog.Logger
}

// DropReport counts the rows seen and the rows rejected by reason.
type DropReport struct {
	RowsRead int
	Dropped  map[types.DropReason]int
}

func (d *DropReport) drop(reason types.DropReason) {
	if d.Dropped == nil {
		d.Dropped = make(map[types.DropReason]int)
	}
	d.Dropped[reason]++
}

// Apply adds the counts to a run report.
func (d *DropReport) Apply(report *types.RunReport) {
	report.RowsRead += d.RowsRead
	if len(d.Dropped) > 0 && report.RowsDropped == nil {
		report.RowsDropped = make(map[types.DropReason]int, len(d.Dropped))
	}
	for reason, n := range d.Dropped {
		report.RowsDropped[reason] += n
	}
}

// CSVReader parses the readings table.
type CSVReader struct {
	metricColumn string
	filter       CoordinateFilter
	logger       *slog.Logger
}

// NewCSVReader creates a CSVReader. Zero options select the default metric
// column and the positive-coordinate filter.
func NewCSVReader(opts Options) *CSVReader {
	r := &CSVReader{
		metricColumn: opts.MetricColumn,
		filter:       opts.Filter,
		logger:       opts.Logger,
	}
	if r.metricColumn == "" {
		r.metricColumn = DefaultMetricColumn
	}
	if r.filter == "" {
		r.filter = FilterPositive
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// columns holds the header positions of the columns we read.
type columns struct {
	farm, when, lon, lat, metric int
	width                        int
}

func (r *CSVReader) mapHeader(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	required := []string{ColFarmName, ColReadingDateTime, ColLongitude, ColLatitude, r.metricColumn}
	var missing []string
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return columns{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingColumn,
			fmt.Sprintf("input is missing required columns: %s", strings.Join(missing, ", ")),
			nil,
			map[string]any{"missing": missing},
		)
	}

	c := columns{
		farm:   idx[ColFarmName],
		when:   idx[ColReadingDateTime],
		lon:    idx[ColLongitude],
		lat:    idx[ColLatitude],
		metric: idx[r.metricColumn],
	}
	c.width = max(c.farm, c.when, c.lon, c.lat, c.metric) + 1
	return c, nil
}

// ReadAll reads every row. Unusable rows are logged with their line number and
// counted in the DropReport; only a missing or malformed header is an error.
func (r *CSVReader) ReadAll(in io.Reader) ([]types.Reading, *DropReport, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, types.NewAppError(types.ErrCodeValidationEmptyInput, "input has no header row", nil)
	}
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeValidationMissingColumn, "failed to read header row", err)
	}

	cols, err := r.mapHeader(header)
	if err != nil {
		return nil, nil, err
	}

	if r.filter == FilterPositive {
		r.logger.Warn("coordinate filter keeps only strictly positive latitude and longitude; readings in the southern or western hemisphere will be dropped")
	}

	report := &DropReport{}
	var readings []types.Reading

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			report.RowsRead++
			report.drop(types.DropMalformedRow)
			r.logger.Warn("dropping malformed row", "line", parseErr.Line, "error", parseErr.Err)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading input: %w", err)
		}

		report.RowsRead++
		line, _ := cr.FieldPos(0)

		reading, reason, err := r.parseRow(row, cols, line)
		if err != nil {
			report.drop(reason)
			r.logger.Warn("dropping row", "line", line, "reason", string(reason), "error", err)
			continue
		}
		readings = append(readings, reading)
	}

	r.logger.Info("input read",
		"rows", report.RowsRead,
		"accepted", len(readings),
		"dropped", report.RowsRead-len(readings),
	)
	return readings, report, nil
}

func (r *CSVReader) parseRow(row []string, cols columns, line int) (types.Reading, types.DropReason, error) {
	if len(row) < cols.width {
		return types.Reading{}, types.DropMalformedRow,
			fmt.Errorf("row has %d fields, want at least %d", len(row), cols.width)
	}

	farm := strings.TrimSpace(row[cols.farm])
	if farm == "" {
		return types.Reading{}, types.DropMalformedRow, errors.New("farm name is empty")
	}

	when, err := ParseReadingTime(row[cols.when])
	if err != nil {
		return types.Reading{}, types.DropInvalidTimestamp, err
	}

	lat, err := ParseCoordinate(row[cols.lat])
	if err != nil {
		return types.Reading{}, dropReasonFor(err), fmt.Errorf("latitude: %w", err)
	}
	lon, err := ParseCoordinate(row[cols.lon])
	if err != nil {
		return types.Reading{}, dropReasonFor(err), fmt.Errorf("longitude: %w", err)
	}

	if ok, reason := r.filter.Accept(lat, lon); !ok {
		return types.Reading{}, reason, fmt.Errorf("coordinate (%v, %v) rejected by %s filter", lat, lon, r.filter)
	}

	return types.Reading{
		Farm:        farm,
		ReadingTime: when,
		Latitude:    lat,
		Longitude:   lon,
		Metric:      row[cols.metric],
		Line:        line,
	}, "", nil
}

func dropReasonFor(err error) types.DropReason {
	if types.CodeOf(err) == types.ErrCodeValidationMissingCoordinate {
		return types.DropMissingCoordinate
	}
	return types.DropInvalidCoordinate
}
