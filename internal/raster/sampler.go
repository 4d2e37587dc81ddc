package raster

import (
	"fmt"

	"farmsat/internal/types"
)

// Sample extracts the ten declared bands at every address. Each band plane is
// read exactly once and then indexed at all addresses, since decoding a plane
// costs far more than indexing it.
//
// The result has one BandVector per address, in input order. An address
// outside the grid aborts the call with ErrCodeInternalPixelOutOfRange; no
// substitute value is ever produced.
func Sample(addresses []types.PixelAddress, img Image) ([]types.BandVector, error) {
	grid := img.Grid()

	for i, addr := range addresses {
		if !grid.InBounds(addr) {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeInternalPixelOutOfRange,
				fmt.Sprintf("address %d (%d, %d) outside %dx%d raster",
					i, addr.Row, addr.Col, grid.Height, grid.Width),
				nil,
				map[string]any{"index": i, "row": addr.Row, "col": addr.Col},
			)
		}
	}

	if img.BandCount() < types.NumBands {
		return nil, types.NewAppError(
			types.ErrCodeInternalRasterDecode,
			fmt.Sprintf("raster has %d planes, want %d", img.BandCount(), types.NumBands),
			nil,
		)
	}

	out := make([]types.BandVector, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}

	for _, band := range types.AllBands {
		plane, err := img.ReadPlane(band.Plane())
		if err != nil {
			return nil, fmt.Errorf("reading band %s: %w", band, err)
		}
		if len(plane) != grid.Width*grid.Height {
			return nil, types.NewAppError(
				types.ErrCodeInternalRasterDecode,
				fmt.Sprintf("band %s plane has %d values, want %d", band, len(plane), grid.Width*grid.Height),
				nil,
			)
		}

		for i, addr := range addresses {
			out[i].Set(band, float64(plane[addr.Row*grid.Width+addr.Col]))
		}
	}

	return out, nil
}
