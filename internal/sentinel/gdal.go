package sentinel

import (
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
	"github.com/AgileCrafts/Satellite-Image-Analysis/output"
)

// GDAL is the GDAL-backed raster access handed to delivery runs.
type GDAL struct {
	Loader Loader
}

func (g GDAL) Decode(data []byte) (*raster.Scene, error) {
	return g.Loader.Decode(data)
}

func (GDAL) WriteMask(path string, m raster.Mask, ref *raster.GeoRef) error {
	return WriteMaskGeoTIFF(path, m, ref)
}

func (GDAL) ReadMask(path string) (raster.Mask, error) {
	return ReadMask(path)
}

func (GDAL) LonLat(projectionWKT string) (output.LonLatReprojector, error) {
	rp, err := NewWGS84Reprojector(projectionWKT)
	if err != nil {
		return nil, err
	}
	return rp, nil
}

func (GDAL) PixelLonLat(ref raster.GeoRef, x, y int) (float64, float64, error) {
	return PixelToLonLat(ref, x, y)
}

func (GDAL) Polygonize(m raster.Mask) ([]output.Shape, error) {
	return Polygonize(m)
}
