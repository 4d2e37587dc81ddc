package raster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmsat/internal/geo"
	"farmsat/internal/types"
)

// countingImage wraps an Image and records how often each plane is read.
type countingImage struct {
	Image
	reads map[int]int
}

func (c *countingImage) ReadPlane(plane int) ([]float32, error) {
	c.reads[plane]++
	return c.Image.ReadPlane(plane)
}

// failingImage returns an error for one plane.
type failingImage struct {
	Image
	failPlane int
}

func (f *failingImage) ReadPlane(plane int) ([]float32, error) {
	if plane == f.failPlane {
		return nil, errors.New("corrupt strip")
	}
	return f.Image.ReadPlane(plane)
}

// makeImage builds a width x height image with ten planes where the value at
// (row, col) of plane p is p*1000 + row*width + col.
func makeImage(t *testing.T, width, height int) *MemImage {
	t.Helper()

	planes := make([][]float32, types.NumBands)
	for p := range planes {
		planes[p] = make([]float32, width*height)
		for i := range planes[p] {
			planes[p][i] = float32((p+1)*1000 + i)
		}
	}

	img, err := NewMemImage(geo.Grid{
		Transform: geo.NorthUp(9.0, 45.0, 0.001, 0.001),
		Width:     width,
		Height:    height,
	}, planes)
	require.NoError(t, err)
	return img
}

func TestSamplePreservesOrderAndCount(t *testing.T) {
	img := makeImage(t, 4, 3)
	addrs := []types.PixelAddress{
		{Row: 2, Col: 3},
		{Row: 0, Col: 0},
		{Row: 1, Col: 2},
		{Row: 0, Col: 0},
	}

	got, err := Sample(addrs, img)
	require.NoError(t, err)
	require.Len(t, got, len(addrs))

	for i, addr := range addrs {
		flat := float64(addr.Row*4 + addr.Col)
		for _, band := range types.AllBands {
			want := float64(band.Plane()*1000) + flat
			assert.Equal(t, want, got[i].Get(band), "address %d band %s", i, band)
		}
	}
}

func TestSampleReadsEachPlaneOnce(t *testing.T) {
	img := &countingImage{Image: makeImage(t, 4, 3), reads: map[int]int{}}
	addrs := make([]types.PixelAddress, 0, 12)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			addrs = append(addrs, types.PixelAddress{Row: r, Col: c})
		}
	}

	_, err := Sample(addrs, img)
	require.NoError(t, err)

	require.Len(t, img.reads, types.NumBands)
	for plane, n := range img.reads {
		assert.Equal(t, 1, n, "plane %d", plane)
	}
}

func TestSampleOutOfBounds(t *testing.T) {
	img := makeImage(t, 4, 3)

	for _, addr := range []types.PixelAddress{
		{Row: 3, Col: 0},
		{Row: 0, Col: 4},
		{Row: -1, Col: 0},
		{Row: 0, Col: -1},
	} {
		_, err := Sample([]types.PixelAddress{{Row: 0, Col: 0}, addr}, img)
		require.Error(t, err)
		assert.Equal(t, types.ErrCodeInternalPixelOutOfRange, types.CodeOf(err))
	}
}

func TestSampleTooFewPlanes(t *testing.T) {
	img, err := NewMemImage(geo.Grid{Transform: geo.NorthUp(0, 0, 1, 1), Width: 1, Height: 1},
		[][]float32{{1}, {2}, {3}})
	require.NoError(t, err)

	_, err = Sample([]types.PixelAddress{{Row: 0, Col: 0}}, img)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalRasterDecode, types.CodeOf(err))
}

func TestSamplePropagatesPlaneError(t *testing.T) {
	img := &failingImage{Image: makeImage(t, 2, 2), failPlane: types.B08.Plane()}

	_, err := Sample([]types.PixelAddress{{Row: 1, Col: 1}}, img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B08")
}

func TestSampleEmpty(t *testing.T) {
	got, err := Sample(nil, makeImage(t, 2, 2))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewMemImageValidatesPlanes(t *testing.T) {
	grid := geo.Grid{Transform: geo.NorthUp(0, 0, 1, 1), Width: 2, Height: 2}

	_, err := NewMemImage(grid, [][]float32{{1, 2, 3}})
	require.Error(t, err)

	_, err = NewMemImage(geo.Grid{Width: 0, Height: 2}, nil)
	require.Error(t, err)

	img, err := NewMemImage(grid, [][]float32{{1, 2, 3, 4}})
	require.NoError(t, err)
	_, err = img.ReadPlane(2)
	assert.Equal(t, types.ErrCodeInternalRasterDecode, types.CodeOf(err))
	require.NoError(t, img.Close())
	assert.Equal(t, 0, img.BandCount())
}

func TestDecodeGeoTIFFEmpty(t *testing.T) {
	_, err := DecodeGeoTIFF(nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalRasterDecode, types.CodeOf(err))
}
