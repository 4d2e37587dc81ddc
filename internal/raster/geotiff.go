package raster

import (
	"fmt"
	"os"
	"sync"

	"github.com/airbusgeo/godal"

	"farmsat/internal/geo"
	"farmsat/internal/types"
)

var registerOnce sync.Once

// RegisterDrivers registers the GDAL drivers. It is safe to call repeatedly;
// DecodeGeoTIFF calls it on first use.
func RegisterDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// DecodeGeoTIFF decodes a multi-band GeoTIFF (as returned by the imagery
// API) into an in-memory Image. The GDAL dataset and its backing temp file
// are released before returning.
func DecodeGeoTIFF(data []byte) (Image, error) {
	if len(data) == 0 {
		return nil, types.NewAppError(types.ErrCodeInternalRasterDecode, "empty raster payload", nil)
	}

	RegisterDrivers()

	f, err := os.CreateTemp("", "farmsat-*.tif")
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create raster temp file", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to write raster temp file", err)
	}
	if err := f.Close(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to close raster temp file", err)
	}

	ds, err := godal.Open(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalRasterDecode, "GDAL could not open raster", err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalRasterDecode, "raster has no geotransform", err)
	}

	structure := ds.Structure()
	grid := geo.Grid{
		Transform: geo.GeoTransform(gt),
		Width:     structure.SizeX,
		Height:    structure.SizeY,
	}

	bands := ds.Bands()
	planes := make([][]float32, len(bands))
	for i, band := range bands {
		buf := make([]float32, grid.Width*grid.Height)
		if err := band.Read(0, 0, buf, grid.Width, grid.Height); err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalRasterDecode,
				fmt.Sprintf("failed to read plane %d", i+1),
				err,
			)
		}
		planes[i] = buf
	}

	return NewMemImage(grid, planes)
}
