// Package raster holds decoded multi-band imagery and the band sampler that
// extracts per-pixel band vectors from it.
//
// An Image is owned by exactly one (farm, date) batch: it is created by the
// image fetcher, read by the sampler and closed as soon as sampling completes.
package raster

import (
	"fmt"

	"farmsat/internal/geo"
	"farmsat/internal/types"
)

// Image is a decoded multi-band raster grid with an affine transform.
type Image interface {
	// Grid returns the spatial frame of the raster.
	Grid() geo.Grid

	// BandCount returns the number of planes.
	BandCount() int

	// ReadPlane returns the full plane for a 1-based band index in row-major
	// order (len = Width*Height). Callers read each plane once.
	ReadPlane(plane int) ([]float32, error)

	// Close releases any resources held by the image.
	Close() error
}

// MemImage is an Image whose planes are held in memory.
type MemImage struct {
	grid   geo.Grid
	planes [][]float32
}

// NewMemImage builds an in-memory image. Every plane must hold exactly
// grid.Width*grid.Height values.
func NewMemImage(grid geo.Grid, planes [][]float32) (*MemImage, error) {
	if grid.Width <= 0 || grid.Height <= 0 {
		return nil, types.NewAppError(
			types.ErrCodeInternalRasterDecode,
			fmt.Sprintf("invalid raster size %dx%d", grid.Width, grid.Height),
			nil,
		)
	}
	want := grid.Width * grid.Height
	for i, p := range planes {
		if len(p) != want {
			return nil, types.NewAppError(
				types.ErrCodeInternalRasterDecode,
				fmt.Sprintf("plane %d has %d values, want %d", i+1, len(p), want),
				nil,
			)
		}
	}
	return &MemImage{grid: grid, planes: planes}, nil
}

// Grid implements Image.
func (m *MemImage) Grid() geo.Grid { return m.grid }

// BandCount implements Image.
func (m *MemImage) BandCount() int { return len(m.planes) }

// ReadPlane implements Image.
func (m *MemImage) ReadPlane(plane int) ([]float32, error) {
	if plane < 1 || plane > len(m.planes) {
		return nil, types.NewAppError(
			types.ErrCodeInternalRasterDecode,
			fmt.Sprintf("plane %d does not exist (raster has %d)", plane, len(m.planes)),
			nil,
		)
	}
	return m.planes[plane-1], nil
}

// Close implements Image. It drops the plane references.
func (m *MemImage) Close() error {
	m.planes = nil
	return nil
}
