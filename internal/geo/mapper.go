// Package geo implements the coordinate math between WGS84 readings and raster
// pixel grids: the world-to-pixel mapping, per-farm bounding boxes, and the
// pixel dimensions of a requested image.
package geo

import (
	"fmt"
	"math"

	"farmsat/internal/types"
)

// GeoTransform is an affine transform in GDAL ordering:
//
//	X = t[0] + col*t[1] + row*t[2]
//	Y = t[3] + col*t[4] + row*t[5]
//
// For a north-up image t[2] = t[4] = 0 and t[5] is negative, so row 0 is the
// northernmost row.
type GeoTransform [6]float64

// NorthUp builds the transform of an unrotated grid whose north-west corner is
// at (originLon, originLat) with the given pixel size in degrees.
func NorthUp(originLon, originLat, pixelWidth, pixelHeight float64) GeoTransform {
	return GeoTransform{originLon, pixelWidth, 0, originLat, 0, -pixelHeight}
}

// Grid is the spatial frame of a raster: its transform and pixel dimensions.
type Grid struct {
	Transform GeoTransform
	Width     int
	Height    int
}

// Extent returns the geographic box covered by an unrotated grid.
func (g Grid) Extent() types.BoundingBox {
	t := g.Transform
	x0, x1 := t[0], t[0]+float64(g.Width)*t[1]
	y0, y1 := t[3], t[3]+float64(g.Height)*t[5]
	return types.BoundingBox{
		LonMin: math.Min(x0, x1),
		LatMin: math.Min(y0, y1),
		LonMax: math.Max(x0, x1),
		LatMax: math.Max(y0, y1),
	}
}

// InBounds reports whether the address indexes a pixel of the grid.
func (g Grid) InBounds(p types.PixelAddress) bool {
	return p.Row >= 0 && p.Row < g.Height && p.Col >= 0 && p.Col < g.Width
}

// fractionalPixel inverts the affine transform, returning the continuous
// (row, col) position of a world coordinate.
func fractionalPixel(lon, lat float64, t GeoTransform) (fracRow, fracCol float64, ok bool) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, false
	}

	dx := lon - t[0]
	dy := lat - t[3]

	fracCol = (t[5]*dx - t[2]*dy) / det
	fracRow = (t[1]*dy - t[4]*dx) / det

	return fracRow, fracCol, true
}

// PixelOf maps a coordinate to the pixel that contains it, flooring the
// fractional position. Coordinates outside the grid are an error; the address
// is never clamped onto the edge.
func PixelOf(lon, lat float64, grid Grid) (types.PixelAddress, error) {
	fracRow, fracCol, ok := fractionalPixel(lon, lat, grid.Transform)
	if !ok {
		return types.PixelAddress{}, types.NewAppErrorWithDetails(
			types.ErrCodeInternalRasterDecode,
			"raster transform is not invertible",
			nil,
			map[string]any{"transform": grid.Transform},
		)
	}

	if math.IsNaN(fracRow) || math.IsNaN(fracCol) || math.IsInf(fracRow, 0) || math.IsInf(fracCol, 0) {
		return types.PixelAddress{}, types.NewAppError(
			types.ErrCodeInternalPixelOutOfRange,
			fmt.Sprintf("coordinate (%g, %g) does not map to a finite pixel", lon, lat),
			nil,
		)
	}

	p := types.PixelAddress{
		Row: int(math.Floor(fracRow)),
		Col: int(math.Floor(fracCol)),
	}

	if !grid.InBounds(p) {
		return p, types.NewAppErrorWithDetails(
			types.ErrCodeInternalPixelOutOfRange,
			fmt.Sprintf("coordinate (%g, %g) maps to pixel (%d, %d) outside %dx%d grid",
				lon, lat, p.Row, p.Col, grid.Height, grid.Width),
			nil,
			map[string]any{"lon": lon, "lat": lat, "row": p.Row, "col": p.Col},
		)
	}

	return p, nil
}

// PixelsOf maps every reading independently, preserving order. The first
// failure is returned annotated with the reading's source line.
func PixelsOf(readings []types.Reading, grid Grid) ([]types.PixelAddress, error) {
	out := make([]types.PixelAddress, 0, len(readings))
	for _, r := range readings {
		p, err := PixelOf(r.Longitude, r.Latitude, grid)
		if err != nil {
			return nil, fmt.Errorf("reading on line %d: %w", r.Line, err)
		}
		out = append(out, p)
	}
	return out, nil
}
