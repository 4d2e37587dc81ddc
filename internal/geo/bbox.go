package geo

import (
	"math"

	"farmsat/internal/types"
)

const (
	// extremaDecimals is the precision the extrema are rounded to before
	// padding. Rounding moves a value by at most 5e-7, less than the padding.
	extremaDecimals = 6

	// metersPerDegreeLat is the mean length of one degree of latitude.
	metersPerDegreeLat = 111_320.0
)

// BoundingBoxOf computes a farm's request extent: the readings' extrema,
// rounded to six decimals, each padded outward by types.BoundingBoxPadding.
func BoundingBoxOf(readings []types.Reading) (types.BoundingBox, error) {
	if len(readings) == 0 {
		return types.BoundingBox{}, types.NewAppError(
			types.ErrCodeValidationEmptyInput,
			"cannot compute a bounding box without readings",
			nil,
		)
	}

	lonMin, lonMax := math.Inf(1), math.Inf(-1)
	latMin, latMax := math.Inf(1), math.Inf(-1)
	for _, r := range readings {
		lonMin = math.Min(lonMin, r.Longitude)
		lonMax = math.Max(lonMax, r.Longitude)
		latMin = math.Min(latMin, r.Latitude)
		latMax = math.Max(latMax, r.Latitude)
	}

	return types.BoundingBox{
		LonMin: roundTo(lonMin, extremaDecimals) - types.BoundingBoxPadding,
		LatMin: roundTo(latMin, extremaDecimals) - types.BoundingBoxPadding,
		LonMax: roundTo(lonMax, extremaDecimals) + types.BoundingBoxPadding,
		LatMax: roundTo(latMax, extremaDecimals) + types.BoundingBoxPadding,
	}, nil
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

// Dimensions returns the pixel width and height of an image covering bbox at
// the given ground resolution in meters. Distances use a local equirectangular
// approximation at the box's central latitude, which is accurate to well under
// a pixel at farm scale. Both dimensions are at least 1.
func Dimensions(bbox types.BoundingBox, resolutionMeters float64) (width, height int) {
	if resolutionMeters <= 0 {
		return 1, 1
	}

	midLat := (bbox.LatMin + bbox.LatMax) / 2 * math.Pi / 180
	widthMeters := (bbox.LonMax - bbox.LonMin) * metersPerDegreeLat * math.Cos(midLat)
	heightMeters := (bbox.LatMax - bbox.LatMin) * metersPerDegreeLat

	width = int(math.Round(math.Abs(widthMeters) / resolutionMeters))
	height = int(math.Round(math.Abs(heightMeters) / resolutionMeters))

	return max(width, 1), max(height, 1)
}
