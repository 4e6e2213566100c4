package sentinel

import (
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// Loader decodes 5-band GeoTIFF scenes (Green, Red, NIR, SWIR1, SCL) with
// GDAL.
type Loader struct{}

// Decode reads a scene from raw GeoTIFF bytes without touching the
// filesystem.
func (l Loader) Decode(data []byte) (*raster.Scene, error) {
	if len(data) == 0 {
		return nil, &raster.FormatError{Reason: "empty raster"}
	}
	if err := registerMemRasters(); err != nil {
		return nil, err
	}
	key := memFiles.put(data)
	defer memFiles.remove(key)
	return l.Open(memPrefix + key)
}

// Open reads a scene from a raster file.
func (l Loader) Open(path string) (*raster.Scene, error) {
	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, &raster.FormatError{Reason: err.Error()}
	}
	defer ds.Close()

	st := ds.Structure()
	width, height := st.SizeX, st.SizeY
	if st.NBands != raster.BandCount {
		return nil, &raster.FormatError{Reason: fmt.Sprintf("expected %d bands, got %d", raster.BandCount, st.NBands)}
	}

	bands := make([][]float32, 0, raster.BandCount)
	for i, band := range ds.Bands() {
		data := make([]float32, width*height)
		if err := band.Read(0, 0, data, width, height); err != nil {
			return nil, &raster.FormatError{Reason: fmt.Sprintf("failed to read band %s: %v", raster.BandName(i), err)}
		}
		bands = append(bands, data)
	}

	scene, err := raster.NewScene(width, height, bands)
	if err != nil {
		return nil, err
	}

	if gt, err := ds.GeoTransform(); err == nil {
		scene.GeoRef = &raster.GeoRef{GeoTransform: gt, Projection: ds.Projection()}
	}
	return scene, nil
}
