package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"farmsat/internal/types"
)

// ReadingTimeLayout is the day-first timestamp format of the input file.
const ReadingTimeLayout = "02/01/2006 15:04:05"

// ParseCoordinate parses a decimal-degree value. A single comma is accepted as
// the decimal separator ("45,123456" is 45.123456).
func ParseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, types.NewAppError(types.ErrCodeValidationMissingCoordinate, "coordinate is empty", nil)
	}

	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidCoordinate,
			fmt.Sprintf("coordinate %q is not a number", s),
			err,
		)
	}
	return v, nil
}

// ParseReadingTime parses a ReadingDateTime cell as UTC.
func ParseReadingTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ReadingTimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, types.NewAppError(
			types.ErrCodeValidationInvalidTimestamp,
			fmt.Sprintf("reading time %q does not match %s", s, ReadingTimeLayout),
			err,
		)
	}
	return t, nil
}

// CoordinateFilter decides which parsed coordinates enter the pipeline.
type CoordinateFilter string

const (
	// FilterPositive keeps rows whose latitude and longitude are both
	// strictly positive. Southern and western hemispheres are excluded.
	FilterPositive CoordinateFilter = "positive"

	// FilterValid keeps any coordinate inside the WGS84 range. The exact
	// origin (0, 0) is treated as a missing fix.
	FilterValid CoordinateFilter = "valid"
)

// ParseCoordinateFilter validates a filter name.
func ParseCoordinateFilter(s string) (CoordinateFilter, error) {
	switch f := CoordinateFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterPositive, FilterValid:
		return f, nil
	case "":
		return FilterPositive, nil
	default:
		return "", types.NewAppError(
			types.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown coordinate filter %q (want %q or %q)", s, FilterPositive, FilterValid),
			nil,
		)
	}
}

// Accept reports whether the coordinate passes the filter, and if not, why.
func (f CoordinateFilter) Accept(lat, lon float64) (bool, types.DropReason) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false, types.DropInvalidCoordinate
	}

	switch f {
	case FilterValid:
		if lat == 0 && lon == 0 {
			return false, types.DropMissingCoordinate
		}
		return true, ""
	default:
		if lat > 0 && lon > 0 {
			return true, ""
		}
		return false, types.DropFilteredCoordinate
	}
}
