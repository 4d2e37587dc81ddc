// Package types defines the domain model shared by every farmsat package:
// input readings, the per-farm bounding box, pixel addresses, labelled band and
// index vectors, and the enriched output record.
package types

import (
	"math"
	"time"
)

// BoundingBoxPadding is the outward padding, in degrees, applied to every
// extremum of a farm's bounding box so that all readings fall strictly inside
// the fetched raster's extent.
const BoundingBoxPadding = 1e-6

// Reading is one input record. It is never modified after ingestion.
type Reading struct {
	Farm        string
	ReadingTime time.Time
	Latitude    float64
	Longitude   float64

	// Metric is the dry-matter column, passed through to the output untouched.
	Metric string

	// Line is the 1-based line number in the source file (header = line 1).
	Line int
}

// ReadingDate returns the calendar date of the reading at midnight UTC.
func (r Reading) ReadingDate() time.Time {
	y, m, d := r.ReadingTime.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BoundingBox is a geographic extent in WGS84 decimal degrees.
type BoundingBox struct {
	LonMin float64 `json:"lon_min"`
	LatMin float64 `json:"lat_min"`
	LonMax float64 `json:"lon_max"`
	LatMax float64 `json:"lat_max"`
}

// Contains reports whether the coordinate lies strictly inside the box.
func (b BoundingBox) Contains(lon, lat float64) bool {
	return lon > b.LonMin && lon < b.LonMax && lat > b.LatMin && lat < b.LatMax
}

// Slice returns the box in (lon_min, lat_min, lon_max, lat_max) order, the
// layout expected by the imagery API.
func (b BoundingBox) Slice() []float64 {
	return []float64{b.LonMin, b.LatMin, b.LonMax, b.LatMax}
}

// PixelAddress is an integer (row, column) location in a raster grid. Row 0 is
// the northernmost row; it is only meaningful for the raster it came from.
type PixelAddress struct {
	Row int
	Col int
}

// Band identifies a Sentinel-2 spectral band.
type Band int

const (
	B02 Band = iota
	B03
	B04
	B05
	B06
	B07
	B08
	B8A
	B11
	B12

	// NumBands is the number of bands requested from the imagery API.
	NumBands = int(B12) + 1
)

// bandNames is indexed by Band.
var bandNames = [NumBands]string{
	"B02", "B03", "B04", "B05", "B06", "B07", "B08", "B8A", "B11", "B12",
}

// AllBands lists the bands in output column order, which is also the order
// of the planes in the requested raster.
var AllBands = [NumBands]Band{B02, B03, B04, B05, B06, B07, B08, B8A, B11, B12}

// String returns the band label, e.g. "B8A".
func (b Band) String() string {
	if b < 0 || int(b) >= NumBands {
		return "B??"
	}
	return bandNames[b]
}

// Plane returns the 1-based raster plane that carries this band.
func (b Band) Plane() int {
	return int(b) + 1
}

// BandVector holds the ten reflectance values sampled at one pixel, labelled
// by Band.
type BandVector struct {
	values [NumBands]float64
}

// Get returns the value for a band.
func (v BandVector) Get(b Band) float64 {
	return v.values[b]
}

// Set stores the value for a band.
func (v *BandVector) Set(b Band, val float64) {
	v.values[b] = val
}

// NewBandVector builds a BandVector from a band-to-value map. Missing bands are
// zero.
func NewBandVector(values map[Band]float64) BandVector {
	var v BandVector
	for b, val := range values {
		v.Set(b, val)
	}
	return v
}

// IndexValue is one named index result.
type IndexValue struct {
	Name  string
	Value float64
}

// IndexVector holds the derived indices for one reading in a fixed order.
// Values may be NaN when a formula's denominator was zero.
type IndexVector []IndexValue

// Get returns the value for the named index and whether it is present.
func (v IndexVector) Get(name string) (float64, bool) {
	for _, iv := range v {
		if iv.Name == name {
			return iv.Value, true
		}
	}
	return math.NaN(), false
}

// Season is a calendar season label.
type Season string

const (
	SeasonSpring  Season = "spring"
	SeasonSummer  Season = "summer"
	SeasonAutumn  Season = "autumn"
	SeasonWinter  Season = "winter"
	SeasonUnknown Season = ""
)

// EnrichedRecord is one output row.
type EnrichedRecord struct {
	Reading     Reading
	ReadingDate time.Time
	Pixel       PixelAddress
	Bands       BandVector
	Indices     IndexVector

	// Elevation is nil when the lookup failed.
	Elevation *float64

	Season Season
}
